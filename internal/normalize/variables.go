package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/vburojevic/dcw/internal/domain"
)

var numericTypeRe = regexp.MustCompile(`^(u?int|float|complex)(8|16|32|64|128)?$`)

// maxComplexity bounds how many nested nodes are counted per value
const maxComplexity = 1000

var scopeOrder = []domain.VariableScope{domain.ScopeLocal, domain.ScopeClosure, domain.ScopeGlobal}

// Variables converts raw variables into typed snapshots ordered local,
// closure, global and by name inside each scope. A value that cannot be
// serialized degrades to its %v form and is reported as a collection error.
func Variables(raw []domain.RawVariable) ([]domain.VariableSnapshot, []error) {
	var errs []error
	snaps := lo.Map(raw, func(r domain.RawVariable, _ int) domain.VariableSnapshot {
		s, err := variable(r)
		if err != nil {
			errs = append(errs, err)
		}
		return s
	})

	groups := lo.GroupBy(snaps, func(s domain.VariableSnapshot) domain.VariableScope { return s.Scope })
	out := make([]domain.VariableSnapshot, 0, len(snaps))
	for _, scope := range scopeOrder {
		group := groups[scope]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Name < group[j].Name })
		out = append(out, group...)
	}
	return out, errs
}

func variable(r domain.RawVariable) (domain.VariableSnapshot, error) {
	s := domain.VariableSnapshot{
		Name:  strings.TrimSpace(r.Name),
		Scope: domain.ParseVariableScope(r.Scope),
	}
	if s.Name == "" {
		s.Name = "<unnamed>"
	}

	value, size, err := render(r.Value)
	s.Value = value
	s.Size = size
	s.Type = explicitType(r.Type)
	if s.Type == domain.TypeUnknown {
		s.Type = InferType(r.Value)
	}
	s.Complexity = complexity(r.Value, 0)
	if err != nil {
		return s, domain.NewPipelineError(domain.CollectionError, "variable "+s.Name, err)
	}
	return s, nil
}

// render returns the display string and approximate serialized size
func render(v any) (string, int, error) {
	if s, ok := v.(string); ok {
		return s, len(s), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		s := fmt.Sprintf("%v", v)
		return s, len(s), err
	}
	return string(b), len(b), nil
}

// InferType guesses a value's type from its Go shape or, for strings, from
// the literal a debug adapter printed.
func InferType(v any) domain.ValueType {
	switch val := v.(type) {
	case nil:
		return domain.TypeNull
	case bool:
		return domain.TypeBoolean
	case float64, float32, int, int64, int32, uint, uint64, json.Number:
		return domain.TypeNumber
	case []any:
		return domain.TypeArray
	case map[string]any:
		return domain.TypeObject
	case string:
		return inferLiteral(val)
	default:
		return domain.TypeUnknown
	}
}

func inferLiteral(s string) domain.ValueType {
	t := strings.TrimSpace(s)
	switch {
	case t == "undefined":
		return domain.TypeUndefined
	case t == "None" || t == "nil" || t == "<nil>":
		return domain.TypeNull
	case t == "True" || t == "False":
		return domain.TypeBoolean
	case strings.HasPrefix(t, "Array(") || strings.HasPrefix(t, "list["):
		return domain.TypeArray
	case strings.HasPrefix(t, "Object ") || strings.HasPrefix(t, "Map(") || strings.HasPrefix(t, "dict"):
		return domain.TypeObject
	case strings.HasPrefix(t, "ƒ") || strings.HasPrefix(t, "function") || strings.HasPrefix(t, "<function"):
		return domain.TypeUnknown
	case len(t) >= 2 && t[0] == '\'' && t[len(t)-1] == '\'':
		return domain.TypeString
	}
	if !gjson.Valid(t) {
		return domain.TypeString
	}
	res := gjson.Parse(t)
	switch res.Type {
	case gjson.Null:
		return domain.TypeNull
	case gjson.True, gjson.False:
		return domain.TypeBoolean
	case gjson.Number:
		return domain.TypeNumber
	case gjson.String:
		return domain.TypeString
	case gjson.JSON:
		if res.IsArray() {
			return domain.TypeArray
		}
		return domain.TypeObject
	}
	return domain.TypeUnknown
}

// explicitType maps adapter type names onto ValueType, TypeUnknown when the
// name is absent or unrecognized.
func explicitType(name string) domain.ValueType {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == "":
		return domain.TypeUnknown
	case n == "null" || n == "nonetype" || n == "nil":
		return domain.TypeNull
	case n == "undefined":
		return domain.TypeUndefined
	case n == "bool" || n == "boolean":
		return domain.TypeBoolean
	case n == "number" || n == "bigint" || n == "double" || n == "decimal" || numericTypeRe.MatchString(n):
		return domain.TypeNumber
	case n == "string" || n == "str" || n == "char" || n == "rune":
		return domain.TypeString
	case n == "array" || n == "list" || n == "tuple" || n == "set" || strings.HasPrefix(n, "[]"):
		return domain.TypeArray
	case n == "object" || n == "dict" || n == "map" || strings.HasPrefix(n, "map[") || strings.HasPrefix(n, "struct"):
		return domain.TypeObject
	}
	return domain.TypeUnknown
}

func complexity(v any, count int) int {
	if count >= maxComplexity {
		return count
	}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			count = complexity(item, count+1)
		}
	case map[string]any:
		for _, item := range val {
			count = complexity(item, count+1)
		}
	}
	return min(count, maxComplexity)
}
