package norm

// IndexSpec is a declared index: a logical name, the KeyFunction that
// derives its values, and the scalar type those values must have. Two
// IndexSpecs are equivalent iff their logical_name matches and their
// key_fn serializes to byte-identical blobs (§3) -- value_type is
// derived, not part of the equivalence test.
type IndexSpec struct {
	Name      string
	KeyFn     KeyFunction
	ValueType ValueKind // zero value means "infer on first build", see §4.2
}

// Index builds an IndexSpec from an explicit name and KeyFunction.
func Index(name string, keyFn KeyFunction) IndexSpec {
	return IndexSpec{Name: name, KeyFn: keyFn}
}

// FieldIndex is the bare-field-name shorthand from §3: Index(f) means
// Index(f, key_fn = FieldPick(f)).
func FieldIndex(field string) IndexSpec {
	return IndexSpec{Name: field, KeyFn: FieldPick(field)}
}

// Equivalent reports whether two IndexSpecs declare the same index per
// §3's equivalence rule.
func (s IndexSpec) Equivalent(o IndexSpec) bool {
	if s.Name != o.Name {
		return false
	}
	return KeyFunctionsEqual(s.KeyFn, o.KeyFn)
}
