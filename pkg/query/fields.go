package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kgraphdb/kgraph/pkg/graph"
)

// fieldKind classifies a queryable field and decides which operators apply.
type fieldKind int

const (
	kindString fieldKind = iota
	kindStrings
	kindNumber
	kindTime
)

// queryFields is the closed set of queryable node fields. Unknown fields are
// rejected up front with ErrInvalidQuery rather than silently matching nothing.
var queryFields = map[string]fieldKind{
	"id":              kindString,
	"name":            kindString,
	"path":            kindString,
	"relativePath":    kindString,
	"hash":            kindString,
	"type":            kindString,
	"language":        kindString,
	"framework":       kindString,
	"documentation":   kindString,
	"purpose":         kindString,
	"tags":            kindStrings,
	"size":            kindNumber,
	"complexity":      kindNumber,
	"maintainability": kindNumber,
	"linesOfCode":     kindNumber,
	"lastModified":    kindTime,
	"lastAnalyzed":    kindTime,
}

type predicate func(n *graph.Node) bool

// compileConditions validates every condition before anything is evaluated,
// so a malformed clause fails the whole query instead of filtering it.
func compileConditions(conds []Condition) ([]predicate, error) {
	preds := make([]predicate, 0, len(conds))
	for i, c := range conds {
		p, err := compileCondition(c)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		if i > 0 && c.Connector != "" && c.Connector != And && c.Connector != Or {
			return nil, fmt.Errorf("condition %d: %w: unknown connector %q", i, ErrInvalidQuery, c.Connector)
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func compileCondition(c Condition) (predicate, error) {
	kind, ok := queryFields[c.Field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidQuery, c.Field)
	}

	if c.Operator == OpExists {
		field := c.Field
		return func(n *graph.Node) bool { return fieldExists(n, field) }, nil
	}

	switch kind {
	case kindString:
		return compileStringCondition(c)
	case kindStrings:
		return compileStringsCondition(c)
	case kindNumber:
		return compileNumberCondition(c)
	case kindTime:
		return compileTimeCondition(c)
	}
	return nil, fmt.Errorf("%w: field %q", ErrInvalidQuery, c.Field)
}

func compileStringCondition(c Condition) (predicate, error) {
	field := c.Field
	switch c.Operator {
	case OpEquals, OpContains, OpStartsWith, OpEndsWith:
		want, err := stringValue(c)
		if err != nil {
			return nil, err
		}
		op := c.Operator
		return func(n *graph.Node) bool {
			got := stringField(n, field)
			switch op {
			case OpEquals:
				return got == want
			case OpContains:
				return strings.Contains(got, want)
			case OpStartsWith:
				return strings.HasPrefix(got, want)
			default:
				return strings.HasSuffix(got, want)
			}
		}, nil
	case OpMatches:
		pattern, err := stringValue(c)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidQuery, pattern, err)
		}
		return func(n *graph.Node) bool { return re.MatchString(stringField(n, field)) }, nil
	case OpIn:
		want, err := stringListValue(c)
		if err != nil {
			return nil, err
		}
		return func(n *graph.Node) bool {
			got := stringField(n, field)
			for _, w := range want {
				if got == w {
					return true
				}
			}
			return false
		}, nil
	}
	return nil, opError(c)
}

func compileStringsCondition(c Condition) (predicate, error) {
	field := c.Field
	switch c.Operator {
	case OpContains, OpEquals:
		want, err := stringValue(c)
		if err != nil {
			return nil, err
		}
		return func(n *graph.Node) bool {
			for _, got := range stringsField(n, field) {
				if got == want {
					return true
				}
			}
			return false
		}, nil
	case OpIn:
		want, err := stringListValue(c)
		if err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(want))
		for _, w := range want {
			set[w] = struct{}{}
		}
		return func(n *graph.Node) bool {
			for _, got := range stringsField(n, field) {
				if _, ok := set[got]; ok {
					return true
				}
			}
			return false
		}, nil
	}
	return nil, opError(c)
}

func compileNumberCondition(c Condition) (predicate, error) {
	field := c.Field
	switch c.Operator {
	case OpEquals, OpGreater, OpLess:
		want, err := numberValue(c)
		if err != nil {
			return nil, err
		}
		op := c.Operator
		return func(n *graph.Node) bool {
			got := numberField(n, field)
			switch op {
			case OpGreater:
				return got > want
			case OpLess:
				return got < want
			default:
				return got == want
			}
		}, nil
	}
	return nil, opError(c)
}

func compileTimeCondition(c Condition) (predicate, error) {
	field := c.Field
	switch c.Operator {
	case OpEquals, OpGreater, OpLess:
		want, err := timeValue(c)
		if err != nil {
			return nil, err
		}
		op := c.Operator
		return func(n *graph.Node) bool {
			got := timeField(n, field)
			switch op {
			case OpGreater:
				return got.After(want)
			case OpLess:
				return got.Before(want)
			default:
				return got.Equal(want)
			}
		}, nil
	}
	return nil, opError(c)
}

func opError(c Condition) error {
	return fmt.Errorf("%w: operator %q not supported for field %q", ErrInvalidQuery, c.Operator, c.Field)
}

func stringValue(c Condition) (string, error) {
	s, ok := c.Value.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q wants a string value, got %T", ErrInvalidQuery, c.Field, c.Value)
	}
	return s, nil
}

func stringListValue(c Condition) ([]string, error) {
	switch v := c.Value.(type) {
	case []string:
		return v, nil
	case []any:
		// JSON-decoded queries arrive as []any.
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: field %q wants a string list, got %T element", ErrInvalidQuery, c.Field, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: field %q wants a string list, got %T", ErrInvalidQuery, c.Field, c.Value)
}

func numberValue(c Condition) (float64, error) {
	switch v := c.Value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("%w: field %q wants a numeric value, got %T", ErrInvalidQuery, c.Field, c.Value)
}

func timeValue(c Condition) (time.Time, error) {
	switch v := c.Value.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: field %q wants an RFC 3339 timestamp: %v", ErrInvalidQuery, c.Field, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: field %q wants a timestamp, got %T", ErrInvalidQuery, c.Field, c.Value)
}

func stringField(n *graph.Node, field string) string {
	switch field {
	case "id":
		return string(n.ID)
	case "name":
		return n.Name
	case "path":
		return n.Path
	case "relativePath":
		return n.RelativePath
	case "hash":
		return n.Hash
	case "type":
		return string(n.Type)
	case "language":
		return n.Metadata.Language
	case "framework":
		return n.Metadata.Framework
	case "documentation":
		return n.Metadata.Documentation
	case "purpose":
		if n.Semantics == nil {
			return ""
		}
		return n.Semantics.Purpose
	}
	return ""
}

func stringsField(n *graph.Node, field string) []string {
	if field == "tags" {
		return n.Tags
	}
	return nil
}

func numberField(n *graph.Node, field string) float64 {
	switch field {
	case "size":
		return float64(n.Size)
	case "complexity":
		return n.Metadata.Complexity
	case "maintainability":
		return n.Metadata.Maintainability
	case "linesOfCode":
		return float64(n.Metadata.LinesOfCode)
	}
	return 0
}

func timeField(n *graph.Node, field string) time.Time {
	switch field {
	case "lastModified":
		return n.LastModified
	case "lastAnalyzed":
		return n.LastAnalyzed
	}
	return time.Time{}
}

func fieldExists(n *graph.Node, field string) bool {
	switch queryFields[field] {
	case kindString:
		return stringField(n, field) != ""
	case kindStrings:
		return len(stringsField(n, field)) > 0
	case kindNumber:
		return numberField(n, field) != 0
	case kindTime:
		return !timeField(n, field).IsZero()
	}
	return false
}

// evaluate folds compiled predicates left to right through their connectors.
func evaluate(n *graph.Node, conds []Condition, preds []predicate) bool {
	if len(preds) == 0 {
		return true
	}
	result := preds[0](n)
	for i := 1; i < len(preds); i++ {
		if conds[i].Connector == Or {
			result = result || preds[i](n)
		} else {
			result = result && preds[i](n)
		}
	}
	return result
}

// compareNodes orders two nodes by the sort keys, node ID last as a
// deterministic tie-break.
func compareNodes(a, b *graph.Node, keys []OrderBy) bool {
	for _, key := range keys {
		var cmp int
		switch queryFields[key.Field] {
		case kindString:
			cmp = strings.Compare(stringField(a, key.Field), stringField(b, key.Field))
		case kindNumber:
			av, bv := numberField(a, key.Field), numberField(b, key.Field)
			switch {
			case av < bv:
				cmp = -1
			case av > bv:
				cmp = 1
			}
		case kindTime:
			at, bt := timeField(a, key.Field), timeField(b, key.Field)
			switch {
			case at.Before(bt):
				cmp = -1
			case at.After(bt):
				cmp = 1
			}
		case kindStrings:
			cmp = strings.Compare(strings.Join(stringsField(a, key.Field), ","), strings.Join(stringsField(b, key.Field), ","))
		}
		if cmp != 0 {
			if key.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
	}
	return a.ID < b.ID
}

// validateOrderBy rejects unknown sort fields up front.
func validateOrderBy(keys []OrderBy) error {
	for _, key := range keys {
		if _, ok := queryFields[key.Field]; !ok {
			return fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, key.Field)
		}
	}
	return nil
}
