// Package readmodel builds denormalized read models by running small typed
// pipelines (match, lookup, derive, project) over a document source.
//
// A Source only has to answer "documents in collection C whose field F is one
// of these values". Every Lookup stage issues exactly one such query for the
// whole batch it joins, so nested joins never fan out per document.
package readmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vidtube/backend/internal/logging"
)

// Collection names shared by every Source implementation.
const (
	CollectionUsers         = "users"
	CollectionVideos        = "videos"
	CollectionSubscriptions = "subscriptions"
)

// IDField is the identifier field present on every document.
const IDField = "_id"

var errMissingMatch = errors.New("readmodel: pipeline must start with a match stage")

// Document is a single record flowing through a pipeline.
type Document map[string]any

// Source is the query primitive a backing store must provide.
type Source interface {
	Find(ctx context.Context, collection, field string, values []string) ([]Document, error)
}

// Stage is one step of a pipeline.
type Stage interface {
	apply(ctx context.Context, src Source, docs []Document) ([]Document, error)
}

// Pipeline reads Collection and applies Stages in order. The first stage must be
// a Match so the source can narrow the read.
type Pipeline struct {
	Collection string
	Stages     []Stage
}

// Execute runs the pipeline against src.
func Execute(ctx context.Context, src Source, p Pipeline) ([]Document, error) {
	if len(p.Stages) == 0 {
		return nil, errMissingMatch
	}
	first, ok := p.Stages[0].(Match)
	if !ok {
		return nil, errMissingMatch
	}

	ctx, span := logging.StartSpan(ctx, "readmodel.execute", slog.String("collection", p.Collection))
	defer span.End()

	docs, err := src.Find(ctx, p.Collection, first.Field, []string{first.Value})
	if err != nil {
		return nil, fmt.Errorf("match %s.%s: %w", p.Collection, first.Field, err)
	}

	return runStages(ctx, src, docs, p.Stages[1:])
}

func runStages(ctx context.Context, src Source, docs []Document, stages []Stage) ([]Document, error) {
	var err error
	for _, stage := range stages {
		if len(docs) == 0 {
			return docs, nil
		}
		if docs, err = stage.apply(ctx, src, docs); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// Match keeps documents whose Field equals Value. As the first stage it is
// pushed down to the source.
type Match struct {
	Field string
	Value string
}

func (m Match) apply(_ context.Context, _ Source, docs []Document) ([]Document, error) {
	out := docs[:0:0]
	for _, doc := range docs {
		if v, ok := stringValue(doc[m.Field]); ok && v == m.Value {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Lookup joins documents from another collection where From.ForeignField equals
// the local field, storing the matches under As. When the local field is an
// array the joined documents follow its order, and repeated ids join once.
// Pipeline stages run over the joined documents before they are attached.
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
	Pipeline     []Stage
}

func (l Lookup) apply(ctx context.Context, src Source, docs []Document) ([]Document, error) {
	var keys []string
	seen := make(map[string]struct{})
	for _, doc := range docs {
		for _, key := range localKeys(doc[l.LocalField]) {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	index := make(map[string][]Document)
	if len(keys) > 0 {
		foreign, err := src.Find(ctx, l.From, l.ForeignField, keys)
		if err != nil {
			return nil, fmt.Errorf("lookup %s.%s: %w", l.From, l.ForeignField, err)
		}
		if foreign, err = runStages(ctx, src, foreign, l.Pipeline); err != nil {
			return nil, err
		}
		for _, doc := range foreign {
			if key, ok := stringValue(doc[l.ForeignField]); ok {
				index[key] = append(index[key], doc)
			}
		}
	}

	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		joined := []Document{}
		taken := make(map[string]struct{})
		for _, key := range localKeys(doc[l.LocalField]) {
			if _, dup := taken[key]; dup {
				continue
			}
			taken[key] = struct{}{}
			joined = append(joined, index[key]...)
		}
		next := doc.clone()
		next[l.As] = joined
		out = append(out, next)
	}
	return out, nil
}

// Field names a derived value.
type Field struct {
	Name string
	Expr Expr
}

// AddFields evaluates each expression against the document and stores the result.
// Fields are evaluated in order, so later fields may read earlier ones.
type AddFields struct {
	Fields []Field
}

func (a AddFields) apply(_ context.Context, _ Source, docs []Document) ([]Document, error) {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		next := doc.clone()
		for _, f := range a.Fields {
			next[f.Name] = f.Expr.Eval(next)
		}
		out = append(out, next)
	}
	return out, nil
}

// Project keeps _id plus the listed fields.
type Project struct {
	Fields []string
}

func (p Project) apply(_ context.Context, _ Source, docs []Document) ([]Document, error) {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		next := Document{}
		if id, ok := doc[IDField]; ok {
			next[IDField] = id
		}
		for _, name := range p.Fields {
			if v, ok := doc[name]; ok {
				next[name] = v
			}
		}
		out = append(out, next)
	}
	return out, nil
}

func (d Document) clone() Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}

func localKeys(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		keys := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := stringValue(item); ok {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		if s, ok := stringValue(t); ok {
			return []string{s}
		}
		return nil
	}
}
