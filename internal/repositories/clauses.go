package repositories

import (
	"fmt"
	"strings"
	"time"
)

// Clause is a single filter over entity T. It renders to SQL for the
// database and can be evaluated in memory against a loaded row.
type Clause[T any] interface {
	SQL() (string, []interface{})
	Matches(row *T) bool
}

// Field is a filterable column of T with values of type V
type Field[T any, V comparable] struct {
	Column string
	Value  func(row *T) V
}

// Eq matches rows where the column equals v
func (f Field[T, V]) Eq(v V) Clause[T] {
	return valueClause[T, V]{field: f, op: "=", values: []V{v}}
}

// Ne matches rows where the column differs from v
func (f Field[T, V]) Ne(v V) Clause[T] {
	return valueClause[T, V]{field: f, op: "<>", values: []V{v}}
}

// In matches rows where the column is one of vs
func (f Field[T, V]) In(vs ...V) Clause[T] {
	return valueClause[T, V]{field: f, op: "IN", values: vs}
}

type valueClause[T any, V comparable] struct {
	field  Field[T, V]
	op     string
	values []V
}

func (c valueClause[T, V]) SQL() (string, []interface{}) {
	if c.op == "IN" {
		return fmt.Sprintf("%s IN ?", c.field.Column), []interface{}{c.values}
	}
	return fmt.Sprintf("%s %s ?", c.field.Column, c.op), []interface{}{c.values[0]}
}

func (c valueClause[T, V]) Matches(row *T) bool {
	got := c.field.Value(row)
	switch c.op {
	case "=":
		return got == c.values[0]
	case "<>":
		return got != c.values[0]
	}
	for _, v := range c.values {
		if got == v {
			return true
		}
	}
	return false
}

// TimeField is a timestamp column of T supporting range filters
type TimeField[T any] struct {
	Column string
	Value  func(row *T) time.Time
}

// Before matches rows whose timestamp is at or before t
func (f TimeField[T]) Before(t time.Time) Clause[T] {
	return timeClause[T]{field: f, before: true, at: t}
}

// After matches rows whose timestamp is strictly after t
func (f TimeField[T]) After(t time.Time) Clause[T] {
	return timeClause[T]{field: f, at: t}
}

type timeClause[T any] struct {
	field  TimeField[T]
	before bool
	at     time.Time
}

func (c timeClause[T]) SQL() (string, []interface{}) {
	if c.before {
		return c.field.Column + " <= ?", []interface{}{c.at}
	}
	return c.field.Column + " > ?", []interface{}{c.at}
}

func (c timeClause[T]) Matches(row *T) bool {
	got := c.field.Value(row)
	if c.before {
		return !got.After(c.at)
	}
	return got.After(c.at)
}

// Condition combines clauses with AND (AllOf) or OR (AnyOf)
type Condition[T any] struct {
	Clauses []Clause[T]
	Any     bool
}

// AllOf matches rows satisfying every clause
func AllOf[T any](clauses ...Clause[T]) Condition[T] {
	return Condition[T]{Clauses: clauses}
}

// AnyOf matches rows satisfying at least one clause
func AnyOf[T any](clauses ...Clause[T]) Condition[T] {
	return Condition[T]{Clauses: clauses, Any: true}
}

// SQL renders the condition as a single parenthesized expression
func (c Condition[T]) SQL() (string, []interface{}) {
	if len(c.Clauses) == 0 {
		return "", nil
	}
	sep := " AND "
	if c.Any {
		sep = " OR "
	}
	parts := make([]string, 0, len(c.Clauses))
	var args []interface{}
	for _, cl := range c.Clauses {
		s, a := cl.SQL()
		parts = append(parts, s)
		args = append(args, a...)
	}
	return "(" + strings.Join(parts, sep) + ")", args
}

// Matches evaluates the condition in memory. An empty condition matches everything.
func (c Condition[T]) Matches(row *T) bool {
	if len(c.Clauses) == 0 {
		return true
	}
	for _, cl := range c.Clauses {
		ok := cl.Matches(row)
		if c.Any && ok {
			return true
		}
		if !c.Any && !ok {
			return false
		}
	}
	return !c.Any
}
