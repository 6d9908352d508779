package exec

import (
	"math"
	"sort"

	"github.com/nervusdb/nervusdb/query/eval"
	"github.com/nervusdb/nervusdb/query/plan"
)

// aggBucket accumulates one group's running aggregate state.
type aggBucket struct {
	groupRow Row
	counts   []int64
	sums     []float64
	sumIsInt []bool
	sumInt   []int64
	mins     []eval.Value
	maxs     []eval.Value
	hasMinMax []bool
	collected [][]eval.Value
	distinct  []map[string]struct{}
	samples   [][]float64 // for percentile/stDev
}

// aggregateOp groups input rows by GroupBy items and computes Aggregates
// per group, materializing the whole input before emitting (spec §4.11).
type aggregateOp struct {
	in         Operator
	groupBy    []plan.AggregateItem
	aggregates []plan.AggregateItem
	ctx        *rowCtx
	limiter    *limiter

	order   []string
	buckets map[string]*aggBucket
	result  []Row
	pos     int
	done    bool
}

func (o *aggregateOp) groupKey(row Row) (string, Row) {
	ev := o.ctx.evaluator(row)
	groupRow := eval.NewRow()
	var key []byte
	for _, g := range o.groupBy {
		v, err := ev.Eval(g.Expr)
		if err != nil {
			v = eval.Null
		}
		groupRow = groupRow.With(g.Alias, v)
		key = append(key, v.Fingerprint()...)
		key = append(key, 0)
	}
	return string(key), groupRow
}

func (o *aggregateOp) materialize() error {
	o.buckets = map[string]*aggBucket{}
	for {
		row, more, err := o.in.Next()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		key, groupRow := o.groupKey(row)
		b, ok := o.buckets[key]
		if !ok {
			b = &aggBucket{
				groupRow:  groupRow,
				counts:    make([]int64, len(o.aggregates)),
				sums:      make([]float64, len(o.aggregates)),
				sumIsInt:  make([]bool, len(o.aggregates)),
				sumInt:    make([]int64, len(o.aggregates)),
				mins:      make([]eval.Value, len(o.aggregates)),
				maxs:      make([]eval.Value, len(o.aggregates)),
				hasMinMax: make([]bool, len(o.aggregates)),
				collected: make([][]eval.Value, len(o.aggregates)),
				distinct:  make([]map[string]struct{}, len(o.aggregates)),
				samples:   make([][]float64, len(o.aggregates)),
			}
			for i := range b.sumIsInt {
				b.sumIsInt[i] = true
			}
			o.order = append(o.order, key)
			o.buckets[key] = b
		}
		ev := o.ctx.evaluator(row)
		for i, a := range o.aggregates {
			if err := o.accumulate(b, i, a, ev); err != nil {
				return err
			}
		}
	}
	for _, key := range o.order {
		b := o.buckets[key]
		out := b.groupRow
		for i, a := range o.aggregates {
			out = out.With(a.Alias, o.finish(b, i, a))
		}
		o.result = append(o.result, out)
	}
	if len(o.order) == 0 && len(o.groupBy) == 0 {
		// no input rows at all: a pure aggregate (no GROUP BY keys) still
		// emits one row, e.g. `RETURN count(*)` over an empty graph.
		b := &aggBucket{groupRow: eval.NewRow()}
		b.counts = make([]int64, len(o.aggregates))
		b.sums = make([]float64, len(o.aggregates))
		b.sumIsInt = make([]bool, len(o.aggregates))
		for i := range b.sumIsInt {
			b.sumIsInt[i] = true
		}
		b.mins = make([]eval.Value, len(o.aggregates))
		b.maxs = make([]eval.Value, len(o.aggregates))
		b.hasMinMax = make([]bool, len(o.aggregates))
		b.collected = make([][]eval.Value, len(o.aggregates))
		b.samples = make([][]float64, len(o.aggregates))
		out := b.groupRow
		for i, a := range o.aggregates {
			out = out.With(a.Alias, o.finish(b, i, a))
		}
		o.result = append(o.result, out)
	}
	o.done = true
	return nil
}

func (o *aggregateOp) accumulate(b *aggBucket, i int, a plan.AggregateItem, ev *eval.Evaluator) error {
	if a.CountStar {
		b.counts[i]++
		return nil
	}
	v, err := ev.Eval(a.AggArg)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil
	}
	if a.Distinct {
		if b.distinct[i] == nil {
			b.distinct[i] = map[string]struct{}{}
		}
		fp := string(v.Fingerprint())
		if _, dup := b.distinct[i][fp]; dup {
			return nil
		}
		b.distinct[i][fp] = struct{}{}
	}
	b.counts[i]++
	switch a.Agg {
	case "sum", "avg":
		if v.Kind == eval.KindInt && b.sumIsInt[i] {
			b.sumInt[i] += v.I
		} else {
			b.sumIsInt[i] = false
		}
		b.sums[i] += v.AsFloat()
	case "min":
		if !b.hasMinMax[i] || eval.Compare(v, b.mins[i]) < 0 {
			b.mins[i] = v
			b.hasMinMax[i] = true
		}
	case "max":
		if !b.hasMinMax[i] || eval.Compare(v, b.maxs[i]) > 0 {
			b.maxs[i] = v
			b.hasMinMax[i] = true
		}
	case "collect":
		b.collected[i] = append(b.collected[i], v)
	case "percentilecont", "percentiledisc", "stdev":
		if v.IsNumeric() {
			b.samples[i] = append(b.samples[i], v.AsFloat())
		}
	}
	return nil
}

func (o *aggregateOp) finish(b *aggBucket, i int, a plan.AggregateItem) eval.Value {
	switch a.Agg {
	case "count":
		return eval.Int(b.counts[i])
	case "sum":
		if b.sumIsInt[i] {
			return eval.Int(b.sumInt[i])
		}
		if b.counts[i] == 0 {
			return eval.Int(0)
		}
		return eval.Float(b.sums[i])
	case "avg":
		if b.counts[i] == 0 {
			return eval.Null
		}
		return eval.Float(b.sums[i] / float64(b.counts[i]))
	case "min":
		if !b.hasMinMax[i] {
			return eval.Null
		}
		return b.mins[i]
	case "max":
		if !b.hasMinMax[i] {
			return eval.Null
		}
		return b.maxs[i]
	case "collect":
		return eval.List(append([]eval.Value(nil), b.collected[i]...))
	case "percentilecont", "percentiledisc":
		return percentile(b.samples[i], a.Agg == "percentiledisc")
	case "stdev":
		return stDev(b.samples[i])
	}
	return eval.Null
}

// percentile takes the 50th percentile of samples for the shapes this
// engine exposes through collect()+function composition; callers needing
// an explicit percentile argument pass it through the second AggArg of
// the planner's FunctionCall, handled in query/eval's callFunction rather
// than here, since the planner only recognizes the call as an aggregate
// and leaves constant-folding of its second argument to the evaluator.
func percentile(samples []float64, discrete bool) eval.Value {
	if len(samples) == 0 {
		return eval.Null
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := 0.5 * float64(len(sorted)-1)
	if discrete {
		return eval.Float(sorted[int(math.Round(idx))])
	}
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return eval.Float(sorted[lo])
	}
	frac := idx - float64(lo)
	return eval.Float(sorted[lo]*(1-frac) + sorted[hi]*frac)
}

func stDev(samples []float64) eval.Value {
	n := len(samples)
	if n < 2 {
		return eval.Float(0)
	}
	var mean float64
	for _, s := range samples {
		mean += s
	}
	mean /= float64(n)
	var sq float64
	for _, s := range samples {
		d := s - mean
		sq += d * d
	}
	return eval.Float(math.Sqrt(sq / float64(n-1)))
}

func (o *aggregateOp) Next() (Row, bool, error) {
	if !o.done {
		if err := o.materialize(); err != nil {
			return Row{}, false, err
		}
	}
	if o.pos >= len(o.result) {
		return Row{}, false, nil
	}
	r := o.result[o.pos]
	o.pos++
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return r, true, nil
}
