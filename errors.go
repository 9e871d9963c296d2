package norm

import "fmt"

// NotFoundError is returned by Get, Update, and Delete when no record
// exists with the given identifier.
type NotFoundError struct {
	Collection string
	ID         ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("norm: no record %s in collection %q", e.ID, e.Collection)
}

// UnknownIndexError is returned when a query references an index that is
// not active on the current collection.
type UnknownIndexError struct {
	Collection string
	Index      string
}

func (e *UnknownIndexError) Error() string {
	return fmt.Sprintf("norm: index %q is not active on collection %q", e.Index, e.Collection)
}

// InvalidConditionError is returned for a malformed Condition: a handle
// compared to a non-scalar literal, a cross-type comparison, or an attempt
// to combine Conditions with a boolean operator.
type InvalidConditionError struct {
	Reason string
}

func (e *InvalidConditionError) Error() string {
	return fmt.Sprintf("norm: invalid condition: %s", e.Reason)
}

// IndexApplyError wraps a failure applying a KeyFunction to a document
// during a write: the function raised, or returned a null/unsupported
// value. The write that triggered it is never partially committed.
type IndexApplyError struct {
	Collection string
	Index      string
	Err        error
}

func (e *IndexApplyError) Error() string {
	return fmt.Sprintf("norm: index %q on collection %q failed to apply: %v", e.Index, e.Collection, e.Err)
}

func (e *IndexApplyError) Unwrap() error { return e.Err }

// IndexTypeMismatchError is returned when a KeyFunction's newly computed
// value_type disagrees with the type recorded in persisted SchemaState.
type IndexTypeMismatchError struct {
	Collection string
	Index      string
	Persisted  ValueKind
	Computed   ValueKind
}

func (e *IndexTypeMismatchError) Error() string {
	return fmt.Sprintf("norm: index %q on collection %q has persisted type %s, computed %s",
		e.Index, e.Collection, e.Persisted, e.Computed)
}

// InvalidKeyFnError is returned when a KeyFunction cannot be serialized,
// deserialized, or fails to round-trip through test_key_fn.
type InvalidKeyFnError struct {
	Reason string
}

func (e *InvalidKeyFnError) Error() string {
	return fmt.Sprintf("norm: invalid key function: %s", e.Reason)
}

// BackendError wraps a lower-level backend failure. Retriable indicates
// whether Store.Init's backfill retry loop should back off and retry,
// versus propagate immediately.
type BackendError struct {
	Op        string
	Err       error
	Retriable bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("norm: backend error during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// InvalidDocumentError is returned when a document fails basic structural
// validation (e.g. a non-string map key, or an unsupported leaf type) on
// create or update.
type InvalidDocumentError struct {
	Reason string
}

func (e *InvalidDocumentError) Error() string {
	return fmt.Sprintf("norm: invalid document: %s", e.Reason)
}
