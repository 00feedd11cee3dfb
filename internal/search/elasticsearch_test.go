package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"example.com/backstage/services/partyup/config"
	"example.com/backstage/services/partyup/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeCluster answers every request with respond and records what it received
type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(w http.ResponseWriter, r *http.Request)
}

const clusterInfo = `{"name":"test","cluster_name":"test","version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	// the client asks for cluster info before its first real request
	if r.Method == http.MethodGet && r.URL.Path == "/" {
		_, _ = io.WriteString(w, clusterInfo)
		return
	}

	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	c.mu.Unlock()

	c.respond(w, r)
}

func (c *fakeCluster) received() []recordedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedRequest(nil), c.requests...)
}

func newTestClient(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*ElasticClient, *fakeCluster) {
	t.Helper()
	cluster := &fakeCluster{respond: respond}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	client, err := NewElasticClient(config.ElasticConfig{URL: srv.URL, Prefix: "test"})
	require.NoError(t, err)
	return client, cluster
}

func reply(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func requireKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected an application error, got %v", err)
	assert.Equal(t, kind, appErr.Kind)
	assert.Equal(t, apperrors.BackendSearchIndex, appErr.Backend)
}

type testDoc struct {
	ID    string `json:"-"`
	GUID  string `json:"guid"`
	Title string `json:"title"`
}

func (d *testDoc) SetDocumentID(id string) { d.ID = id }

func TestAddCreatesDocumentInPrefixedIndex(t *testing.T) {
	client, cluster := newTestClient(t, reply(http.StatusCreated, `{"result":"created"}`))

	id, err := client.Add(context.Background(), IndexEvents, testDoc{GUID: "e-1", Title: "Birthday"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	reqs := cluster.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/test-events/_create/"+id, reqs[0].Path)
	assert.JSONEq(t, `{"guid":"e-1","title":"Birthday"}`, reqs[0].Body)
}

func TestGetDecodesHit(t *testing.T) {
	client, cluster := newTestClient(t, reply(http.StatusOK,
		`{"_index":"test-events","_id":"doc-7","found":true,"_source":{"guid":"e-1","title":"Birthday"}}`))

	doc, err := Get[testDoc](context.Background(), client, IndexEvents, "doc-7")
	require.NoError(t, err)
	assert.Equal(t, "doc-7", doc.ID)
	assert.Equal(t, "Birthday", doc.Title)
	assert.Equal(t, "/test-events/_doc/doc-7", cluster.received()[0].Path)
}

func TestGetMissingDocumentIsNotFound(t *testing.T) {
	client, _ := newTestClient(t, reply(http.StatusNotFound, `{"_index":"test-events","_id":"nope","found":false}`))

	_, err := client.Get(context.Background(), IndexEvents, "nope")
	requireKind(t, err, apperrors.KindNotFound)
}

func TestErrorResponsesAreStorageErrors(t *testing.T) {
	failure := `{"error":{"type":"illegal_argument_exception","reason":"bad request"},"status":400}`
	tests := []struct {
		name string
		call func(c *ElasticClient) error
	}{
		{"get", func(c *ElasticClient) error {
			_, err := c.Get(context.Background(), IndexUsers, "x")
			return err
		}},
		{"add", func(c *ElasticClient) error {
			_, err := c.Add(context.Background(), IndexUsers, testDoc{GUID: "u"})
			return err
		}},
		{"update", func(c *ElasticClient) error {
			return c.Update(context.Background(), IndexUsers, "x", map[string]interface{}{"title": "t"})
		}},
		{"delete", func(c *ElasticClient) error {
			return c.Delete(context.Background(), IndexUsers, "x")
		}},
		{"search", func(c *ElasticClient) error {
			_, err := c.Search(context.Background(), IndexUsers, map[string]interface{}{"query": map[string]interface{}{"match_all": map[string]interface{}{}}})
			return err
		}},
		{"msearch", func(c *ElasticClient) error {
			_, err := c.MultiSearch(context.Background(), []MultiRequest{{Index: IndexUsers, Query: map[string]interface{}{}}})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, reply(http.StatusBadRequest, failure))
			err := tt.call(client)
			require.Error(t, err)
			requireKind(t, err, apperrors.KindStorage)
			assert.Contains(t, err.Error(), "illegal_argument_exception")
		})
	}
}

func TestServerErrorIsStorageError(t *testing.T) {
	client, _ := newTestClient(t, reply(http.StatusInternalServerError, "cluster unavailable"))

	err := client.Update(context.Background(), IndexEvents, "doc-1", map[string]interface{}{"status": "CANCELLED"})
	requireKind(t, err, apperrors.KindStorage)
}

func TestUpdateSendsPartialDocument(t *testing.T) {
	client, cluster := newTestClient(t, reply(http.StatusOK, `{"result":"updated"}`))

	err := client.Update(context.Background(), IndexEvents, "doc-1", map[string]interface{}{"status": "CANCELLED"})
	require.NoError(t, err)

	reqs := cluster.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/test-events/_update/doc-1", reqs[0].Path)
	assert.JSONEq(t, `{"doc":{"status":"CANCELLED"}}`, reqs[0].Body)
}

func TestDeleteTargetsDocument(t *testing.T) {
	client, cluster := newTestClient(t, reply(http.StatusOK, `{"result":"deleted"}`))

	require.NoError(t, client.Delete(context.Background(), IndexMedia, "doc-9"))

	reqs := cluster.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/test-media/_doc/doc-9", reqs[0].Path)
}

func TestFindStampsDocumentIDs(t *testing.T) {
	client, cluster := newTestClient(t, reply(http.StatusOK, `{"hits":{"hits":[
		{"_id":"a","_source":{"guid":"e-1","title":"Birthday"}},
		{"_id":"b","_source":{"guid":"e-2","title":"Picnic"}}
	]}}`))

	query := map[string]interface{}{"query": map[string]interface{}{"term": map[string]interface{}{"status": "UPCOMING"}}}
	docs, err := Find[testDoc](context.Background(), client, IndexEvents, query)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "e-1", docs[0].GUID)
	assert.Equal(t, "b", docs[1].ID)

	reqs := cluster.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/test-events/_search", reqs[0].Path)
	assert.JSONEq(t, `{"query":{"term":{"status":"UPCOMING"}}}`, reqs[0].Body)
}

func TestMultiSearchKeepsRequestOrder(t *testing.T) {
	client, cluster := newTestClient(t, reply(http.StatusOK, `{"responses":[
		{"hits":{"hits":[{"_id":"h1","_source":{"guid":"u-1"}}]}},
		{"hits":{"hits":[]}}
	]}`))

	results, err := client.MultiSearch(context.Background(), []MultiRequest{
		{Index: IndexUserHivers, Query: map[string]interface{}{"size": 10}},
		{Index: IndexUserFollowers, Query: map[string]interface{}{"size": 20}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, results[0], 1)
	assert.Equal(t, "h1", results[0][0].ID)
	assert.Empty(t, results[1])

	reqs := cluster.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/_msearch", reqs[0].Path)
	lines := strings.Split(strings.TrimSpace(reqs[0].Body), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":"test-user_hivers"}`, lines[0])
	assert.JSONEq(t, `{"size":10}`, lines[1])
	assert.JSONEq(t, `{"index":"test-user_followers"}`, lines[2])
}

func TestMultiSearchReportsFailedResponse(t *testing.T) {
	client, _ := newTestClient(t, reply(http.StatusOK, `{"responses":[
		{"hits":{"hits":[]}},
		{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}
	]}`))

	_, err := client.MultiSearch(context.Background(), []MultiRequest{
		{Index: IndexUserHivers, Query: map[string]interface{}{}},
		{Index: IndexUserFollowers, Query: map[string]interface{}{}},
	})
	requireKind(t, err, apperrors.KindStorage)
	assert.Contains(t, err.Error(), "index_not_found_exception")
}

func TestEnsureIndicesCreatesOnlyMissingIndices(t *testing.T) {
	client, cluster := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/test-users":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = io.WriteString(w, `{"acknowledged":true}`)
		}
	})

	require.NoError(t, client.EnsureIndices(context.Background()))

	created := map[string]map[string]interface{}{}
	for _, req := range cluster.received() {
		if req.Method != http.MethodPut {
			continue
		}
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
		created[req.Path] = body
	}
	assert.Len(t, created, len(Mappings)-1)
	assert.NotContains(t, created, "/test-users")

	events, ok := created["/test-events"]
	require.True(t, ok)
	properties := events["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"type": "geo_point"}, properties["location"])
}

func TestEnsureIndicesFailsOnRejectedMapping(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"mapper_parsing_exception"},"status":400}`)
	})

	err := client.EnsureIndices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}
