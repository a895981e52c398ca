package vectorstore

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// Filter is a conjunction of metadata predicates. A scalar value means
// equality; a []string or []any value means membership. A nil or empty
// filter matches everything.
type Filter map[string]any

// filterFieldPattern restricts field names to identifier characters so a
// malformed filter can never smuggle SQL through a field name.
var filterFieldPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// columnResolver maps a filter field to a text-typed SQL expression.
// Backends differ here: the standard schema resolves every field into its
// JSONB metadata map, the legacy schema resolves only its physical columns.
type columnResolver func(field string) (string, error)

// buildPredicates converts a filter into SQL predicates with positional
// arguments starting at argOffset+1. Fields are processed in sorted order
// so generated SQL is deterministic.
func (f Filter) buildPredicates(resolve columnResolver, argOffset int) ([]string, []any, error) {
	if len(f) == 0 {
		return nil, nil, nil
	}

	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var (
		predicates []string
		args       []any
	)
	for _, field := range fields {
		if !filterFieldPattern.MatchString(field) {
			return nil, nil, fmt.Errorf("%w: field %q is not a valid field name", ErrMalformedFilter, field)
		}
		expr, err := resolve(field)
		if err != nil {
			return nil, nil, err
		}

		value := f[field]
		switch v := value.(type) {
		case []string:
			args = append(args, v)
			predicates = append(predicates, fmt.Sprintf("%s = ANY($%d)", expr, argOffset+len(args)))
		case []any:
			members := make([]string, len(v))
			for i, m := range v {
				members[i] = fmt.Sprint(m)
			}
			args = append(args, members)
			predicates = append(predicates, fmt.Sprintf("%s = ANY($%d)", expr, argOffset+len(args)))
		case nil:
			return nil, nil, fmt.Errorf("%w: field %q has a nil value", ErrMalformedFilter, field)
		default:
			// Slices of concrete element types ([]int, [2]float64, ...) must
			// not fall through to scalar equality, where fmt.Sprint would
			// compare against "[1 2]".
			if k := reflect.ValueOf(v).Kind(); k == reflect.Slice || k == reflect.Array {
				return nil, nil, fmt.Errorf("%w: field %q has an unsupported slice type %T", ErrMalformedFilter, field, v)
			}
			args = append(args, fmt.Sprint(v))
			predicates = append(predicates, fmt.Sprintf("%s = $%d", expr, argOffset+len(args)))
		}
	}
	return predicates, args, nil
}

// whereClause renders predicates into a WHERE fragment, or "" when empty.
func whereClause(predicates []string) string {
	if len(predicates) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(predicates, " AND ")
}
