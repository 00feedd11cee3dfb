// Package searchtest provides an in-memory search index for tests. It
// evaluates the subset of the query DSL the builders emit: term, terms,
// match, multi_match, prefix, bool (must/should/must_not/filter with
// minimum_should_match), function_score (by its inner query), geo_distance
// and match_all. Scoring and sorting are not modelled; hits are returned in
// insertion order.
package searchtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/search"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type doc struct {
	id     string
	source map[string]interface{}
}

// Index is an in-memory search.Index
type Index struct {
	mu      sync.Mutex
	indices map[string][]doc

	// WriteErr, when set, fails every Add, Update and Delete
	WriteErr error
	// SearchErr, when set, fails every Search and MultiSearch
	SearchErr error
}

// New creates an empty index
func New() *Index {
	return &Index{indices: map[string][]doc{}}
}

var _ search.Index = (*Index)(nil)

func (x *Index) Add(_ context.Context, index string, d interface{}) (string, error) {
	if x.WriteErr != nil {
		return "", apperrors.Storage(apperrors.BackendSearchIndex, x.WriteErr)
	}
	source, err := toMap(d)
	if err != nil {
		return "", err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	id := uuid.NewString()
	x.indices[index] = append(x.indices[index], doc{id: id, source: source})
	return id, nil
}

func (x *Index) Get(_ context.Context, index, id string) (*search.Hit, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, d := range x.indices[index] {
		if d.id == id {
			return toHit(d)
		}
	}
	return nil, apperrors.NotFound(apperrors.BackendSearchIndex, "document %s not found in %s", id, index)
}

func (x *Index) Update(_ context.Context, index, id string, fields map[string]interface{}) error {
	if x.WriteErr != nil {
		return apperrors.Storage(apperrors.BackendSearchIndex, x.WriteErr)
	}
	normalized, err := toMap(fields)
	if err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for i, d := range x.indices[index] {
		if d.id == id {
			for k, v := range normalized {
				x.indices[index][i].source[k] = v
			}
			return nil
		}
	}
	return apperrors.Storage(apperrors.BackendSearchIndex, errors.Errorf("document %s missing in %s", id, index))
}

func (x *Index) Delete(_ context.Context, index, id string) error {
	if x.WriteErr != nil {
		return apperrors.Storage(apperrors.BackendSearchIndex, x.WriteErr)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	docs := x.indices[index]
	for i, d := range docs {
		if d.id == id {
			x.indices[index] = append(docs[:i], docs[i+1:]...)
			return nil
		}
	}
	return apperrors.Storage(apperrors.BackendSearchIndex, errors.Errorf("document %s missing in %s", id, index))
}

func (x *Index) Search(_ context.Context, index string, query map[string]interface{}) ([]search.Hit, error) {
	if x.SearchErr != nil {
		return nil, apperrors.Storage(apperrors.BackendSearchIndex, x.SearchErr)
	}
	normalized, err := toMap(query)
	if err != nil {
		return nil, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.search(index, normalized)
}

func (x *Index) MultiSearch(_ context.Context, requests []search.MultiRequest) ([][]search.Hit, error) {
	if x.SearchErr != nil {
		return nil, apperrors.Storage(apperrors.BackendSearchIndex, x.SearchErr)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([][]search.Hit, 0, len(requests))
	for _, r := range requests {
		normalized, err := toMap(r.Query)
		if err != nil {
			return nil, err
		}
		hits, err := x.search(r.Index, normalized)
		if err != nil {
			return nil, err
		}
		out = append(out, hits)
	}
	return out, nil
}

// Count returns the number of documents stored in index
func (x *Index) Count(index string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.indices[index])
}

// Sources returns a copy of every document source stored in index
func (x *Index) Sources(index string) []map[string]interface{} {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(x.indices[index]))
	for _, d := range x.indices[index] {
		cp := make(map[string]interface{}, len(d.source))
		for k, v := range d.source {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

func (x *Index) search(index string, query map[string]interface{}) ([]search.Hit, error) {
	size := -1
	if s, ok := query["size"].(float64); ok {
		size = int(s)
	}
	from := 0
	if f, ok := query["from"].(float64); ok {
		from = int(f)
	}
	q, _ := query["query"].(map[string]interface{})

	var hits []search.Hit
	skipped := 0
	for _, d := range x.indices[index] {
		if size >= 0 && len(hits) == size {
			break
		}
		ok, err := matches(q, d.source)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if skipped < from {
			skipped++
			continue
		}
		hit, err := toHit(d)
		if err != nil {
			return nil, err
		}
		hits = append(hits, *hit)
	}
	return hits, nil
}

func matches(q map[string]interface{}, source map[string]interface{}) (bool, error) {
	if len(q) == 0 {
		return true, nil
	}
	for kind, body := range q {
		clause, _ := body.(map[string]interface{})
		switch kind {
		case "match_all", "geo_distance":
			return true, nil
		case "term":
			for field, v := range clause {
				return equal(source[field], termValue(v)), nil
			}
		case "terms":
			for field, v := range clause {
				if field == "boost" {
					continue
				}
				values, _ := v.([]interface{})
				for _, want := range values {
					if equal(source[field], want) {
						return true, nil
					}
				}
				return false, nil
			}
			return false, nil
		case "match":
			for field, v := range clause {
				if inner, ok := v.(map[string]interface{}); ok {
					v = inner["query"]
				}
				return containsText(source[field], v), nil
			}
		case "prefix":
			for field, v := range clause {
				if inner, ok := v.(map[string]interface{}); ok {
					v = inner["value"]
				}
				s, _ := source[field].(string)
				p, _ := v.(string)
				return p != "" && strings.HasPrefix(strings.ToLower(s), strings.ToLower(p)), nil
			}
		case "multi_match":
			fields, _ := clause["fields"].([]interface{})
			for _, f := range fields {
				name := strings.SplitN(fmt.Sprint(f), "^", 2)[0]
				if containsText(source[name], clause["query"]) {
					return true, nil
				}
			}
			return false, nil
		case "function_score":
			inner, _ := clause["query"].(map[string]interface{})
			return matches(inner, source)
		case "bool":
			return matchBool(clause, source)
		default:
			return false, errors.Errorf("searchtest: unsupported query %q", kind)
		}
	}
	return false, nil
}

func matchBool(b map[string]interface{}, source map[string]interface{}) (bool, error) {
	for _, key := range []string{"must", "filter"} {
		for _, c := range clauses(b[key]) {
			ok, err := matches(c, source)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	for _, c := range clauses(b["must_not"]) {
		ok, err := matches(c, source)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}

	should := clauses(b["should"])
	minimum := 0
	if m, ok := b["minimum_should_match"].(float64); ok {
		minimum = int(m)
	} else if len(should) > 0 && len(clauses(b["must"])) == 0 && len(clauses(b["filter"])) == 0 {
		minimum = 1
	}
	matched := 0
	for _, c := range should {
		ok, err := matches(c, source)
		if err != nil {
			return false, err
		}
		if ok {
			matched++
		}
	}
	return matched >= minimum, nil
}

func clauses(v interface{}) []map[string]interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{t}
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(t))
		for _, c := range t {
			if m, ok := c.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func termValue(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m["value"]
	}
	return v
}

func equal(got, want interface{}) bool {
	if list, ok := got.([]interface{}); ok {
		for _, item := range list {
			if equal(item, want) {
				return true
			}
		}
		return false
	}
	return got != nil && fmt.Sprint(got) == fmt.Sprint(want)
}

func containsText(got, want interface{}) bool {
	w, _ := want.(string)
	if w == "" {
		return false
	}
	if list, ok := got.([]interface{}); ok {
		for _, item := range list {
			if containsText(item, want) {
				return true
			}
		}
		return false
	}
	s, _ := got.(string)
	return strings.Contains(strings.ToLower(s), strings.ToLower(w))
}

func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Storage(apperrors.BackendSearchIndex, err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.Storage(apperrors.BackendSearchIndex, err)
	}
	return out, nil
}

func toHit(d doc) (*search.Hit, error) {
	raw, err := json.Marshal(d.source)
	if err != nil {
		return nil, apperrors.Storage(apperrors.BackendSearchIndex, err)
	}
	return &search.Hit{ID: d.id, Source: raw}, nil
}
