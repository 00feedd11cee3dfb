package search

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Document is implemented by pointers to search document types
type Document[T any] interface {
	*T
	SetDocumentID(id string)
}

// Decode unmarshals a hit's source and stamps its document id
func Decode[T any, PT Document[T]](hit Hit) (T, error) {
	var doc T
	if err := json.Unmarshal(hit.Source, &doc); err != nil {
		return doc, storageError(errors.Wrap(err, "failed to decode search document"))
	}
	PT(&doc).SetDocumentID(hit.ID)
	return doc, nil
}

// DecodeAll decodes every hit in order
func DecodeAll[T any, PT Document[T]](hits []Hit) ([]T, error) {
	docs := make([]T, 0, len(hits))
	for _, hit := range hits {
		doc, err := Decode[T, PT](hit)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Find runs query and decodes every hit
func Find[T any, PT Document[T]](ctx context.Context, idx Index, index string, query map[string]interface{}) ([]T, error) {
	hits, err := idx.Search(ctx, index, query)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T, PT](hits)
}

// FindOne runs query and decodes the first hit, returning nil when there is none
func FindOne[T any, PT Document[T]](ctx context.Context, idx Index, index string, query map[string]interface{}) (*T, error) {
	hits, err := idx.Search(ctx, index, query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	doc, err := Decode[T, PT](hits[0])
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Get fetches and decodes a document by id
func Get[T any, PT Document[T]](ctx context.Context, idx Index, index, id string) (*T, error) {
	hit, err := idx.Get(ctx, index, id)
	if err != nil {
		return nil, err
	}
	doc, err := Decode[T, PT](*hit)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Fields converts a document into the partial-update map sent to the index
func Fields(doc interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, storageError(errors.Wrap(err, "failed to marshal document fields"))
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, storageError(errors.Wrap(err, "failed to convert document fields"))
	}
	// the document id lives in _id, never in _source
	delete(fields, "id")
	return fields, nil
}
