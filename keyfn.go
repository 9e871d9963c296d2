package norm

import "fmt"

// KeyFunction is a pure, deterministic, side-effect-free mapping from a
// document to a scalar value, used to derive an index entry. Two
// KeyFunctions are equal iff their serialized blobs are byte-identical
// (§4.2) — this is how the lifecycle engine detects "same index declared
// by a different process version" without relying on in-process identity.
//
// Concrete KeyFunctions are restricted to the small combinator language
// in keyfn_combinators.go rather than an arbitrary closure, per the
// Design Notes: a general closure cannot be serialized portably, so a
// process declaring an unrepresentable transform must fail at Init with
// InvalidKeyFnError rather than persisting opaque bytecode.
type KeyFunction interface {
	// Apply evaluates the function against a document. A missing or
	// unordered result is reported via ok=false, not a zero Value -- the
	// caller (Store.Create/Update, or backfill) turns that into
	// IndexApplyError.
	Apply(doc Document) (v Value, ok bool, err error)

	// Serialize returns the self-contained blob persisted in SchemaState
	// and compared for equality across processes.
	Serialize() ([]byte, error)

	// kind returns the wire discriminator used during deserialization.
	kind() string
}

// KeyFunctionsEqual reports whether two KeyFunctions serialize to
// byte-identical blobs.
func KeyFunctionsEqual(a, b KeyFunction) bool {
	ab, aerr := a.Serialize()
	bb, berr := b.Serialize()
	if aerr != nil || berr != nil {
		return false
	}
	return string(ab) == string(bb)
}

// TestKeyFn round-trips a KeyFunction through Serialize/Deserialize and
// checks that the reconstructed function agrees with the original on a
// sample document, per §4.2's required test helper. It returns the
// reconstructed, round-trippable KeyFunction on success.
func TestKeyFn(fn KeyFunction, sample Document) (KeyFunction, error) {
	blob, err := fn.Serialize()
	if err != nil {
		return nil, &InvalidKeyFnError{Reason: fmt.Sprintf("serialize: %v", err)}
	}
	reconstructed, err := DeserializeKeyFn(blob)
	if err != nil {
		return nil, &InvalidKeyFnError{Reason: fmt.Sprintf("deserialize: %v", err)}
	}
	origVal, origOK, origErr := fn.Apply(sample)
	newVal, newOK, newErr := reconstructed.Apply(sample)
	if (origErr == nil) != (newErr == nil) || origOK != newOK {
		return nil, &InvalidKeyFnError{Reason: "round-tripped function disagrees with original on sample document"}
	}
	if origOK && !origVal.Equal(newVal) {
		return nil, &InvalidKeyFnError{Reason: "round-tripped function produced a different value on sample document"}
	}
	return reconstructed, nil
}
