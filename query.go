package norm

import "fmt"

// Interval is a half-open or closed range over a single index's values.
// A nil bound means unbounded on that side. LowerInclusive/UpperInclusive
// only matter when the corresponding bound is non-nil.
type Interval struct {
	Lower          *Value
	LowerInclusive bool
	Upper          *Value
	UpperInclusive bool
}

// Empty reports whether the interval can contain no value, either because
// it was never constrained in a satisfiable way or because folding
// conditions produced a contradiction (e.g. x >= 5 and x < 3).
func (iv Interval) Empty() bool {
	if iv.Lower == nil || iv.Upper == nil {
		return false
	}
	c, err := iv.Lower.Compare(*iv.Upper)
	if err != nil {
		return true
	}
	if c > 0 {
		return true
	}
	if c == 0 {
		return !(iv.LowerInclusive && iv.UpperInclusive)
	}
	return false
}

// Plan is the normalized form of a Query: a mapping from index name to the
// interval it must satisfy. This is what the backend contract's
// ListRecords receives -- never a raw Condition list.
type Plan struct {
	Collection string
	Intervals  map[string]Interval

	// SingleRangeIndex is set to the index name when the plan has exactly
	// one index with a non-degenerate range condition, the case in which
	// §4.3 promises ascending-by-that-index result ordering.
	SingleRangeIndex string
}

// Query is an unordered set of Conditions supplied positionally to
// Store.List. Construct via NewQuery or just pass Conditions directly to
// List, which normalizes them internally.
type Query struct {
	Conditions []Condition
}

func NewQuery(conds ...Condition) Query {
	return Query{Conditions: conds}
}

// normalize partitions conditions by index name and folds each group into
// a single interval, per §4.3 steps 1-3. It returns an error for a
// condition whose handle belongs to another collection or that fails its
// own validation (cross-type literal); an
// interval that comes out empty is not an error, it's reported via
// Interval.Empty so callers can short-circuit without touching the
// backend.
func (q Query) normalize(collection string) (Plan, error) {
	byIndex := map[string][]Condition{}
	order := []string{}
	for _, c := range q.Conditions {
		if c.handle.collection != collection {
			return Plan{}, &InvalidConditionError{Reason: fmt.Sprintf(
				"condition on index %q belongs to collection %q, not %q",
				c.handle.index, c.handle.collection, collection)}
		}
		if err := c.validate(); err != nil {
			return Plan{}, err
		}
		if _, seen := byIndex[c.handle.index]; !seen {
			order = append(order, c.handle.index)
		}
		byIndex[c.handle.index] = append(byIndex[c.handle.index], c)
	}

	plan := Plan{Collection: collection, Intervals: make(map[string]Interval, len(byIndex))}
	rangeIndexes := 0
	var lastRangeIndex string
	// fold narrows one side of an interval to v when v is the stricter
	// bound (dir is +1 for a lower bound, -1 for an upper bound), so the
	// folded interval does not depend on the order of the conditions.
	fold := func(bound **Value, inclusive *bool, v Value, incl bool, dir int) {
		if *bound != nil {
			if c, _ := v.Compare(**bound); c*dir < 0 || (c == 0 && (incl || !*inclusive)) {
				return
			}
		}
		*bound, *inclusive = &v, incl
	}
	for _, name := range order {
		conds := byIndex[name]
		iv := Interval{}
		hasRange := false
		for _, c := range conds {
			v := c.literal
			switch c.comparator {
			case CmpEq:
				fold(&iv.Lower, &iv.LowerInclusive, v, true, 1)
				fold(&iv.Upper, &iv.UpperInclusive, v, true, -1)
			case CmpGe, CmpGt:
				fold(&iv.Lower, &iv.LowerInclusive, v, c.comparator == CmpGe, 1)
				hasRange = true
			case CmpLe, CmpLt:
				fold(&iv.Upper, &iv.UpperInclusive, v, c.comparator == CmpLe, -1)
				hasRange = true
			default:
				return Plan{}, &InvalidConditionError{Reason: fmt.Sprintf("unknown comparator %q", c.comparator)}
			}
		}
		plan.Intervals[name] = iv
		if hasRange {
			rangeIndexes++
			lastRangeIndex = name
		}
	}
	if rangeIndexes == 1 {
		plan.SingleRangeIndex = lastRangeIndex
	}
	return plan, nil
}
