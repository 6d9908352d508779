package eval

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nervusdb/nervusdb/internal/value"
)

// callFunction dispatches a scalar builtin by name. Aggregate functions
// (count/sum/avg/min/max/collect/percentileCont/percentileDisc/stDev) are
// recognized and computed by query/exec's Aggregate operator instead —
// this evaluator only ever sees their already-reduced result bound into a
// Row, consistent with the planner's "aggregate recognition" pass pulling
// them out of general expressions before the rest of the tree reaches here
// (spec §4.10).
func (ev *Evaluator) callFunction(name string, args []Value) (Value, error) {
	switch strings.ToLower(name) {
	case "tolower":
		return stringFn(args, strings.ToLower)
	case "toupper":
		return stringFn(args, strings.ToUpper)
	case "trim":
		return stringFn(args, strings.TrimSpace)
	case "ltrim":
		return stringFn(args, func(s string) string { return strings.TrimLeft(s, " \t\n\r") })
	case "rtrim":
		return stringFn(args, func(s string) string { return strings.TrimRight(s, " \t\n\r") })
	case "reverse":
		return reverseFn(args)
	case "size":
		return sizeFn(args)
	case "tostring":
		return toStringFn(args)
	case "tointeger":
		return toIntegerFn(args)
	case "tofloat":
		return toFloatFn(args)
	case "toboolean":
		return toBooleanFn(args)
	case "substring":
		return substringFn(args)
	case "replace":
		return replaceFn(args)
	case "split":
		return splitFn(args)
	case "left":
		return leftRightFn(args, true)
	case "right":
		return leftRightFn(args, false)
	case "head":
		return headFn(args)
	case "last":
		return lastFn(args)
	case "tail":
		return tailFn(args)
	case "range":
		return rangeFn(args)
	case "keys":
		return keysFn(args)
	case "coalesce":
		return coalesceFn(args)
	case "abs":
		return absFn(args)
	case "sign":
		return signFn(args)
	case "id":
		return idFn(ev, args)
	case "labels":
		return labelsFn(ev, args)
	case "type":
		return relTypeFn(ev, args)
	case "properties":
		return propertiesFn(ev, args)
	case "startnode":
		return startNodeFn(args)
	case "endnode":
		return endNodeFn(args)
	case "nodes":
		return pathNodesFn(args)
	case "relationships":
		return pathRelsFn(args)
	case "length":
		return pathLengthFn(args)
	case "datetime":
		return datetimeFn(args)
	case "duration":
		return durationFn(args)
	case "duration.between":
		return durationBetweenFn(args)
	case "date.truncate", "datetime.truncate":
		return truncateFn(args)
	}
	return Null, fmt.Errorf("eval: unknown function %q", name)
}

func stringFn(args []Value, f func(string) string) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: expected 1 argument")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindString {
		return Null, fmt.Errorf("eval: expected String, got %s", args[0].TypeName())
	}
	return String(f(args[0].S)), nil
}

func reverseFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: expected 1 argument")
	}
	switch args[0].Kind {
	case KindNull:
		return Null, nil
	case KindString:
		r := []rune(args[0].S)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return String(string(r)), nil
	case KindList:
		out := make([]Value, len(args[0].List))
		for i, v := range args[0].List {
			out[len(out)-1-i] = v
		}
		return List(out), nil
	}
	return Null, fmt.Errorf("eval: reverse() expects String or List, got %s", args[0].TypeName())
}

func sizeFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: expected 1 argument")
	}
	switch args[0].Kind {
	case KindNull:
		return Null, nil
	case KindString:
		return Int(int64(len([]rune(args[0].S)))), nil
	case KindList:
		return Int(int64(len(args[0].List))), nil
	case KindMap:
		return Int(int64(len(args[0].Keys))), nil
	}
	return Null, fmt.Errorf("eval: size() expects String, List, or Map, got %s", args[0].TypeName())
}

func toStringFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: expected 1 argument")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	return String(args[0].String()), nil
}

func toIntegerFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: expected 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case KindNull:
		return Null, nil
	case KindInt:
		return v, nil
	case KindFloat:
		return Int(int64(v.F)), nil
	case KindString:
		var n int64
		if _, err := fmt.Sscanf(strings.TrimSpace(v.S), "%d", &n); err != nil {
			return Null, nil
		}
		return Int(n), nil
	}
	return Null, fmt.Errorf("eval: toInteger() expects a numeric or string argument")
}

func toFloatFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: expected 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case KindNull:
		return Null, nil
	case KindFloat:
		return v, nil
	case KindInt:
		return Float(float64(v.I)), nil
	case KindString:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v.S), "%g", &f); err != nil {
			return Null, nil
		}
		return Float(f), nil
	}
	return Null, fmt.Errorf("eval: toFloat() expects a numeric or string argument")
}

func toBooleanFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: expected 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case KindNull:
		return Null, nil
	case KindBool:
		return v, nil
	case KindString:
		switch strings.ToLower(v.S) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		default:
			return Null, nil
		}
	}
	return Null, fmt.Errorf("eval: toBoolean() expects a Boolean or String argument")
}

func substringFn(args []Value) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Null, fmt.Errorf("eval: substring() expects 2 or 3 arguments")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindString || !args[1].IsNumeric() {
		return Null, fmt.Errorf("eval: substring() expects (String, Integer[, Integer])")
	}
	r := []rune(args[0].S)
	start := int(args[1].AsFloat())
	if start < 0 {
		start = 0
	}
	if start > len(r) {
		start = len(r)
	}
	end := len(r)
	if len(args) == 3 && !args[2].IsNull() {
		length := int(args[2].AsFloat())
		if start+length < end {
			end = start + length
		}
	}
	return String(string(r[start:end])), nil
}

func replaceFn(args []Value) (Value, error) {
	if len(args) != 3 {
		return Null, fmt.Errorf("eval: replace() expects 3 arguments")
	}
	for _, a := range args {
		if a.IsNull() {
			return Null, nil
		}
	}
	if args[0].Kind != KindString || args[1].Kind != KindString || args[2].Kind != KindString {
		return Null, fmt.Errorf("eval: replace() expects (String, String, String)")
	}
	return String(strings.ReplaceAll(args[0].S, args[1].S, args[2].S)), nil
}

func splitFn(args []Value) (Value, error) {
	if len(args) != 2 {
		return Null, fmt.Errorf("eval: split() expects 2 arguments")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindString || args[1].Kind != KindString {
		return Null, fmt.Errorf("eval: split() expects (String, String)")
	}
	parts := strings.Split(args[0].S, args[1].S)
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = String(p)
	}
	return List(out), nil
}

func leftRightFn(args []Value, left bool) (Value, error) {
	if len(args) != 2 {
		return Null, fmt.Errorf("eval: left()/right() expects 2 arguments")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindString || !args[1].IsNumeric() {
		return Null, fmt.Errorf("eval: left()/right() expects (String, Integer)")
	}
	r := []rune(args[0].S)
	n := int(args[1].AsFloat())
	if n < 0 {
		return Null, fmt.Errorf("eval: negative length argument to left()/right()")
	}
	if n > len(r) {
		n = len(r)
	}
	if left {
		return String(string(r[:n])), nil
	}
	return String(string(r[len(r)-n:])), nil
}

func headFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: head() expects 1 argument")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindList {
		return Null, fmt.Errorf("eval: head() expects a List")
	}
	if len(args[0].List) == 0 {
		return Null, nil
	}
	return args[0].List[0], nil
}

func lastFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: last() expects 1 argument")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindList {
		return Null, fmt.Errorf("eval: last() expects a List")
	}
	if len(args[0].List) == 0 {
		return Null, nil
	}
	return args[0].List[len(args[0].List)-1], nil
}

func tailFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: tail() expects 1 argument")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindList {
		return Null, fmt.Errorf("eval: tail() expects a List")
	}
	if len(args[0].List) == 0 {
		return List(nil), nil
	}
	return List(append([]Value(nil), args[0].List[1:]...)), nil
}

func rangeFn(args []Value) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Null, fmt.Errorf("eval: range() expects 2 or 3 arguments")
	}
	for _, a := range args {
		if !a.IsNumeric() {
			return Null, fmt.Errorf("eval: range() expects Integer arguments")
		}
	}
	start, stop := int64(args[0].AsFloat()), int64(args[1].AsFloat())
	step := int64(1)
	if len(args) == 3 {
		step = int64(args[2].AsFloat())
	}
	if step == 0 {
		return Null, fmt.Errorf("eval: range() step must not be 0")
	}
	var out []Value
	if step > 0 {
		for i := start; i <= stop; i += step {
			out = append(out, Int(i))
		}
	} else {
		for i := start; i >= stop; i += step {
			out = append(out, Int(i))
		}
	}
	return List(out), nil
}

func keysFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: keys() expects 1 argument")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindMap {
		return Null, fmt.Errorf("eval: keys() expects a Map")
	}
	out := make([]Value, len(args[0].Keys))
	for i, k := range args[0].Keys {
		out[i] = String(k)
	}
	return List(out), nil
}

func coalesceFn(args []Value) (Value, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	return Null, nil
}

func absFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: abs() expects 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case KindNull:
		return Null, nil
	case KindInt:
		if v.I < 0 {
			return Int(-v.I), nil
		}
		return v, nil
	case KindFloat:
		if v.F < 0 {
			return Float(-v.F), nil
		}
		return v, nil
	}
	return Null, fmt.Errorf("eval: abs() expects a numeric argument")
}

func signFn(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: sign() expects 1 argument")
	}
	if !args[0].IsNumeric() {
		if args[0].IsNull() {
			return Null, nil
		}
		return Null, fmt.Errorf("eval: sign() expects a numeric argument")
	}
	f := args[0].AsFloat()
	switch {
	case f > 0:
		return Int(1), nil
	case f < 0:
		return Int(-1), nil
	default:
		return Int(0), nil
	}
}

func idFn(ev *Evaluator, args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: id() expects 1 argument")
	}
	switch args[0].Kind {
	case KindNode:
		ext, ok := ev.Graph.ExternalID(args[0].Node)
		if !ok {
			return Null, nil
		}
		return Int(int64(ext)), nil
	case KindEdge:
		return Int(int64(args[0].Edge.Src)<<32 | int64(args[0].Edge.Dst)), nil
	}
	return Null, fmt.Errorf("eval: id() expects a Node or Relationship")
}

func labelsFn(ev *Evaluator, args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: labels() expects 1 argument")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindNode {
		return Null, fmt.Errorf("eval: labels() expects a Node")
	}
	ids := ev.Graph.Labels(args[0].Node)
	out := make([]Value, 0, len(ids))
	for _, id := range ids {
		if name, ok := ev.Graph.ResolveLabelName(id); ok {
			out = append(out, String(name))
		}
	}
	return List(out), nil
}

func relTypeFn(ev *Evaluator, args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: type() expects 1 argument")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindEdge {
		return Null, fmt.Errorf("eval: type() expects a Relationship")
	}
	name, ok := ev.Graph.ResolveRelTypeName(args[0].Edge.Rel)
	if !ok {
		return Null, nil
	}
	return String(name), nil
}

func propertiesFn(ev *Evaluator, args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, fmt.Errorf("eval: properties() expects 1 argument")
	}
	switch args[0].Kind {
	case KindNull:
		return Null, nil
	case KindNode:
		props := ev.Graph.NodeProperties(args[0].Node)
		return mapFromStorage(props), nil
	case KindEdge:
		props := ev.Graph.EdgeProperties(args[0].Edge)
		return mapFromStorage(props), nil
	case KindMap:
		return args[0], nil
	}
	return Null, fmt.Errorf("eval: properties() expects a Node, Relationship, or Map")
}

func mapFromStorage(props map[string]value.Value) Value {
	keys := make([]string, 0, len(props))
	out := make(map[string]Value, len(props))
	for k, v := range props {
		keys = append(keys, k)
		out[k] = FromStorage(v)
	}
	sort.Strings(keys)
	return NewMap(keys, out)
}

func startNodeFn(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindEdge {
		if len(args) == 1 && args[0].IsNull() {
			return Null, nil
		}
		return Null, fmt.Errorf("eval: startNode() expects a Relationship")
	}
	return NodeVal(args[0].Edge.Src), nil
}

func endNodeFn(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindEdge {
		if len(args) == 1 && args[0].IsNull() {
			return Null, nil
		}
		return Null, fmt.Errorf("eval: endNode() expects a Relationship")
	}
	return NodeVal(args[0].Edge.Dst), nil
}

func pathNodesFn(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindPath {
		if len(args) == 1 && args[0].IsNull() {
			return Null, nil
		}
		return Null, fmt.Errorf("eval: nodes() expects a Path")
	}
	out := make([]Value, len(args[0].Path.Nodes))
	for i, n := range args[0].Path.Nodes {
		out[i] = NodeVal(n)
	}
	return List(out), nil
}

func pathRelsFn(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindPath {
		if len(args) == 1 && args[0].IsNull() {
			return Null, nil
		}
		return Null, fmt.Errorf("eval: relationships() expects a Path")
	}
	out := make([]Value, len(args[0].Path.Edges))
	for i, e := range args[0].Path.Edges {
		out[i] = EdgeVal(e)
	}
	return List(out), nil
}

func pathLengthFn(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindPath {
		if len(args) == 1 && args[0].IsNull() {
			return Null, nil
		}
		return Null, fmt.Errorf("eval: length() expects a Path")
	}
	return Int(int64(len(args[0].Path.Edges))), nil
}

func datetimeFn(args []Value) (Value, error) {
	if len(args) == 0 {
		return Null, fmt.Errorf("eval: datetime() requires a string argument in this build")
	}
	if args[0].IsNull() {
		return Null, nil
	}
	if args[0].Kind != KindString {
		return Null, fmt.Errorf("eval: datetime() expects a String argument")
	}
	return parseDateTime(args[0].S)
}

func durationFn(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindMap {
		return Null, fmt.Errorf("eval: duration() expects a single Map argument")
	}
	m := args[0]
	get := func(k string) int64 {
		if v, ok := m.Map[k]; ok && v.IsNumeric() {
			return int64(v.AsFloat())
		}
		return 0
	}
	months := get("years")*12 + get("months")
	days := get("weeks")*7 + get("days")
	nanos := get("hours")*int64(time.Hour) + get("minutes")*int64(time.Minute) + get("seconds")*int64(time.Second) + get("milliseconds")*int64(time.Millisecond)
	return Duration(months, days, nanos), nil
}

func durationBetweenFn(args []Value) (Value, error) {
	if len(args) != 2 {
		return Null, fmt.Errorf("eval: duration.between() expects 2 arguments")
	}
	return DurationBetween(args[0], args[1])
}

func truncateFn(args []Value) (Value, error) {
	if len(args) != 2 || args[1].Kind != KindString {
		return Null, fmt.Errorf("eval: truncate() expects (DateTime, String)")
	}
	return TruncateDateTime(args[0], args[1].S)
}
