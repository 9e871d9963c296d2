package norm

import "fmt"

// Comparator tags the five Condition shapes spec.md §4.3 allows. There is
// deliberately no "And"/"Or" comparator: Condition has no boolean
// combinators, so chaining conditions with and/or is structurally
// impossible rather than a runtime error waiting to happen.
type Comparator string

const (
	CmpEq Comparator = "eq"
	CmpLt Comparator = "lt"
	CmpLe Comparator = "le"
	CmpGt Comparator = "gt"
	CmpGe Comparator = "ge"
)

// Handle is an opaque reference to an active index on a given collection,
// obtained from Store.IndexHandle. It is the only thing the Condition DSL
// can compare -- handle-to-handle comparison is forbidden by construction,
// since Handle has no comparison methods against another Handle.
type Handle struct {
	collection string
	index      string
	valueType  ValueKind
}

func (h Handle) Collection() string { return h.collection }
func (h Handle) Index() string      { return h.index }
func (h Handle) ValueType() ValueKind { return h.valueType }

// Eq, Lt, Le, Gt, Ge compare the handle's index against a scalar literal,
// producing a Condition. Go has no operator overloading, so per the
// Design Notes these explicit methods stand in for the source's
// overloaded comparison operators while preserving the "comparison
// produces a Condition, never a bool" ergonomics.
func (h Handle) Eq(v Value) Condition { return h.cond(CmpEq, v) }
func (h Handle) Lt(v Value) Condition { return h.cond(CmpLt, v) }
func (h Handle) Le(v Value) Condition { return h.cond(CmpLe, v) }
func (h Handle) Gt(v Value) Condition { return h.cond(CmpGt, v) }
func (h Handle) Ge(v Value) Condition { return h.cond(CmpGe, v) }

func (h Handle) cond(c Comparator, v Value) Condition {
	return Condition{handle: h, comparator: c, literal: v}
}

// Condition is a single range/equality constraint produced by comparing a
// Handle against a scalar literal. Conditions are immutable.
type Condition struct {
	handle     Handle
	comparator Comparator
	literal    Value
}

// validate checks the literal is a scalar of the handle's declared type,
// per §4.3's "equality with a non-scalar literal is forbidden" and
// "handle-to-handle comparison is forbidden" rules (the latter is
// enforced structurally -- there is no constructor that accepts a second
// Handle). Cross-type comparisons against the handle's own declared type
// are caught here rather than deferred to the backend.
func (c Condition) validate() error {
	if c.literal.Kind != c.handle.valueType {
		return &InvalidConditionError{Reason: fmt.Sprintf(
			"index %q has type %s, condition literal has type %s",
			c.handle.index, c.handle.valueType, c.literal.Kind)}
	}
	return nil
}
