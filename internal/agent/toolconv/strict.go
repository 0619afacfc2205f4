package toolconv

import "sort"

// NormalizeStrictSchema rewrites a JSON-Schema parameter object in place
// into the shape strict-mode providers demand: every object closes with
// additionalProperties:false, every property is listed in required, and a
// property that was originally optional keeps its optionality by becoming
// nullable (["T","null"]). Schemas with no type at all (the "any JSON
// value" form) are left untyped rather than given a type array, which some
// providers reject. The transformation recurses through properties, array
// items, and the usual combinator keywords.
func NormalizeStrictSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	normalizeStrictNode(schema, false)
	return schema
}

func normalizeStrictNode(node map[string]any, optional bool) {
	if optional {
		makeNullable(node)
	}

	props, _ := node["properties"].(map[string]any)
	isObject := node["type"] == "object" || props != nil

	if isObject {
		node["additionalProperties"] = false

		required := make(map[string]bool)
		if req, ok := node["required"].([]any); ok {
			for _, name := range req {
				if s, ok := name.(string); ok {
					required[s] = true
				}
			}
		}

		names := make([]any, 0, len(props))
		for name, raw := range props {
			if child, ok := raw.(map[string]any); ok {
				normalizeStrictNode(child, !required[name])
			}
		}
		for name := range props {
			names = append(names, name)
		}
		sortAny(names)
		if len(names) > 0 {
			node["required"] = names
		}
	}

	if items, ok := node["items"].(map[string]any); ok {
		normalizeStrictNode(items, false)
	}
	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if variants, ok := node[key].([]any); ok {
			for _, raw := range variants {
				if child, ok := raw.(map[string]any); ok {
					normalizeStrictNode(child, false)
				}
			}
		}
	}
	if defs, ok := node["$defs"].(map[string]any); ok {
		for _, raw := range defs {
			if child, ok := raw.(map[string]any); ok {
				normalizeStrictNode(child, false)
			}
		}
	}
}

// makeNullable widens the node's type with "null". An untyped node (any
// JSON value) already admits null, so it is left alone — adding a type
// array there would narrow it and trip providers that reject type arrays
// for the any-value form.
func makeNullable(node map[string]any) {
	switch typ := node["type"].(type) {
	case string:
		if typ != "null" {
			node["type"] = []any{typ, "null"}
		}
	case []any:
		for _, t := range typ {
			if t == "null" {
				return
			}
		}
		node["type"] = append(typ, "null")
	}
}

func sortAny(values []any) {
	sort.Slice(values, func(i, j int) bool {
		a, _ := values[i].(string)
		b, _ := values[j].(string)
		return a < b
	})
}
