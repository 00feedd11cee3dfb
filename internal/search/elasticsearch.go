package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"example.com/backstage/services/partyup/config"
	"example.com/backstage/services/partyup/internal/apperrors"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Logical index names; the client adds the configured prefix
const (
	IndexUsers          = "users"
	IndexEvents         = "events"
	IndexEventAttendees = "event_attendees"
	IndexUserFollowers  = "user_followers"
	IndexUserHivers     = "user_hivers"
	IndexHiverRequests  = "hiver_requests"
	IndexMedia          = "media"
)

// Hit is a single search result
type Hit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

// MultiRequest is one query of a multi-search round trip
type MultiRequest struct {
	Index string
	Query map[string]interface{}
}

// Index is the search index gateway
type Index interface {
	Add(ctx context.Context, index string, doc interface{}) (string, error)
	Get(ctx context.Context, index, id string) (*Hit, error)
	Update(ctx context.Context, index, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, index, id string) error
	Search(ctx context.Context, index string, query map[string]interface{}) ([]Hit, error)
	MultiSearch(ctx context.Context, requests []MultiRequest) ([][]Hit, error)
}

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

func (c *ElasticClient) indexName(index string) string {
	return config.FormatIndex(c.config, index)
}

// Add indexes doc under a fresh document id and returns that id
func (c *ElasticClient) Add(ctx context.Context, index string, doc interface{}) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", storageError(errors.Wrap(err, "failed to marshal document"))
	}

	id := uuid.NewString()
	req := esapi.CreateRequest{
		Index:      c.indexName(index),
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return "", storageError(errors.Wrap(err, "failed to execute Elasticsearch create request"))
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", responseError(res, "create")
	}
	return id, nil
}

// Get fetches a document by id
func (c *ElasticClient) Get(ctx context.Context, index, id string) (*Hit, error) {
	req := esapi.GetRequest{
		Index:      c.indexName(index),
		DocumentID: id,
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, storageError(errors.Wrap(err, "failed to execute Elasticsearch get request"))
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound(apperrors.BackendSearchIndex, "document %s not found in %s", id, index)
	}
	if res.IsError() {
		return nil, responseError(res, "get")
	}

	var hit Hit
	if err := json.NewDecoder(res.Body).Decode(&hit); err != nil {
		return nil, storageError(errors.Wrap(err, "failed to parse Elasticsearch get response"))
	}
	return &hit, nil
}

// Update merges fields into an existing document
func (c *ElasticClient) Update(ctx context.Context, index, id string, fields map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"doc": fields})
	if err != nil {
		return storageError(errors.Wrap(err, "failed to marshal update body"))
	}

	req := esapi.UpdateRequest{
		Index:      c.indexName(index),
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return storageError(errors.Wrap(err, "failed to execute Elasticsearch update request"))
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "update")
	}
	return nil
}

// Delete removes a document by id
func (c *ElasticClient) Delete(ctx context.Context, index, id string) error {
	req := esapi.DeleteRequest{
		Index:      c.indexName(index),
		DocumentID: id,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return storageError(errors.Wrap(err, "failed to execute Elasticsearch delete request"))
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "delete")
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []Hit `json:"hits"`
	} `json:"hits"`
	Error  map[string]interface{} `json:"error,omitempty"`
	Status int                    `json:"status,omitempty"`
}

// Search runs a query against one index
func (c *ElasticClient) Search(ctx context.Context, index string, query map[string]interface{}) ([]Hit, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, storageError(errors.Wrap(err, "failed to marshal search query"))
	}

	req := esapi.SearchRequest{
		Index: []string{c.indexName(index)},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, storageError(errors.Wrap(err, "failed to execute Elasticsearch search request"))
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res, "search")
	}

	var result searchResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, storageError(errors.Wrap(err, "failed to parse Elasticsearch search response"))
	}
	return result.Hits.Hits, nil
}

// MultiSearch runs several queries in one round trip. Results keep request order.
func (c *ElasticClient) MultiSearch(ctx context.Context, requests []MultiRequest) ([][]Hit, error) {
	body, err := c.multiSearchBody(requests)
	if err != nil {
		return nil, storageError(err)
	}

	req := esapi.MsearchRequest{Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, storageError(errors.Wrap(err, "failed to execute Elasticsearch msearch request"))
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res, "msearch")
	}

	var result struct {
		Responses []searchResponse `json:"responses"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, storageError(errors.Wrap(err, "failed to parse Elasticsearch msearch response"))
	}

	out := make([][]Hit, 0, len(result.Responses))
	for _, r := range result.Responses {
		if r.Error != nil {
			return nil, storageError(errors.Errorf("Elasticsearch msearch error: %v", r.Error))
		}
		out = append(out, r.Hits.Hits)
	}
	return out, nil
}

func (c *ElasticClient) multiSearchBody(requests []MultiRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range requests {
		if err := enc.Encode(map[string]string{"index": c.indexName(r.Index)}); err != nil {
			return nil, errors.Wrap(err, "failed to encode msearch header")
		}
		if err := enc.Encode(r.Query); err != nil {
			return nil, errors.Wrap(err, "failed to encode msearch query")
		}
	}
	return buf.Bytes(), nil
}

func storageError(err error) error {
	return apperrors.Storage(apperrors.BackendSearchIndex, err)
}

func responseError(res *esapi.Response, op string) error {
	raw, _ := io.ReadAll(res.Body)
	var e map[string]interface{}
	if err := json.Unmarshal(raw, &e); err != nil {
		return storageError(errors.Errorf("Elasticsearch %s error: %s", op, res.Status()))
	}
	return storageError(errors.Errorf("Elasticsearch %s error: %v", op, e))
}
