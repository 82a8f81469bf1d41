package graph

// Built-in reducers named in §4.4/§4.5. All four are pure and total, per
// the graph engine's core invariant; §8 invariant 2 states their
// associativity laws, exercised in reducers_test.go.

// ReducerReplace overwrites prev with incoming, unconditionally.
func ReducerReplace(_, incoming any) any {
	return incoming
}

// ReducerAppend concatenates incoming onto prev, treating both as []any.
// A nil prev or a non-slice incoming value is tolerated: prev starts empty,
// and a bare incoming value is appended as a single element.
func ReducerAppend(prev, incoming any) any {
	base, _ := prev.([]any)
	out := make([]any, len(base), len(base)+1)
	copy(out, base)

	if items, ok := incoming.([]any); ok {
		return append(out, items...)
	}
	return append(out, incoming)
}

// ReducerSum adds incoming to prev, coercing both to int. Used for bounded
// counters such as the data-science sandbox strike count.
func ReducerSum(prev, incoming any) any {
	return asInt(prev) + asInt(incoming)
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// ReducerConcatWithSeparator returns a Reducer that joins prev and incoming
// string values with sep, left-associative (§8 invariant 2). An empty prev
// yields incoming unchanged, so the first update to a field never gains a
// leading separator.
func ReducerConcatWithSeparator(sep string) Reducer {
	return func(prev, incoming any) any {
		prevStr, _ := prev.(string)
		incomingStr, _ := incoming.(string)
		if prevStr == "" {
			return incomingStr
		}
		if incomingStr == "" {
			return prevStr
		}
		return prevStr + sep + incomingStr
	}
}
