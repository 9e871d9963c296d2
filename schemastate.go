package norm

import "time"

// IndexLifecycleState is the state machine position of a persisted index
// entry, per §3's Lifecycles: building -> active -> retiring -> dropped.
// There is no "dropped" constant here because a dropped index simply has
// no SchemaState entry any more.
type IndexLifecycleState string

const (
	StateBuilding IndexLifecycleState = "building"
	StateActive   IndexLifecycleState = "active"
	StateRetiring IndexLifecycleState = "retiring"
)

// SchemaStateEntry is one row of the persisted, per-collection SchemaState
// table (§3). KeyFnBlob is the serialized KeyFunction, persisted (not the
// KeyFunction value itself) so that cross-version reconciliation works
// without either process needing to share in-process types.
type SchemaStateEntry struct {
	Name         string
	KeyFnBlob    []byte
	ValueType    ValueKind
	State        IndexLifecycleState
	CreatedAt    time.Time
	LastSeenAt   time.Time
	RetiringSince time.Time // zero unless State == StateRetiring
}

// SchemaState is the persisted, per-collection mapping from logical_name
// to its entry. The live-index set is the subset with State == StateActive.
type SchemaState map[string]SchemaStateEntry

// Active returns the logical names currently in the live-index set.
func (s SchemaState) Active() []string {
	var out []string
	for name, e := range s {
		if e.State == StateActive {
			out = append(out, name)
		}
	}
	return out
}

// ReconcilePlan is the three-way diff computed by Init, per §4.4: which
// declared indexes need to be built from scratch, and which already-active
// declared indexes just need a heartbeat refresh. Persisted-active indexes
// outside the declared set are deliberately absent from this plan -- §4.4
// says to leave them untouched, since another process may still need them.
type ReconcilePlan struct {
	ToBuild  []IndexSpec
	ToRefresh []string
}

// diff computes the reconciliation plan for a declared index set against
// persisted SchemaState, per §4.4's three-way diff (declared vs. persisted
// vs. other-live-declared-sets; the third leg is handled by the lifecycle
// engine's heartbeat bookkeeping, not by this pure function).
func diff(declared []IndexSpec, persisted SchemaState) (ReconcilePlan, error) {
	plan := ReconcilePlan{}
	for _, spec := range declared {
		entry, exists := persisted[spec.Name]
		switch {
		case !exists:
			plan.ToBuild = append(plan.ToBuild, spec)
		case entry.State == StateBuilding || entry.State == StateRetiring:
			// Another process already started (or is winding down) this
			// index; re-declaring it resumes/revives it rather than
			// building a duplicate, so route it through ToBuild too --
			// the backend's BackfillIndex is required to be idempotent.
			if !spec.Equivalent(specFromEntry(spec.Name, entry)) && entry.State == StateBuilding {
				return ReconcilePlan{}, &IndexTypeMismatchError{
					Index:     spec.Name,
					Persisted: entry.ValueType,
					Computed:  spec.ValueType,
				}
			}
			plan.ToBuild = append(plan.ToBuild, spec)
		default: // StateActive
			if !spec.Equivalent(specFromEntry(spec.Name, entry)) {
				// Same logical name, different key_fn: treat as a distinct
				// generation of the index that must itself be (re)built --
				// the caller distinguishes this from a true name collision
				// by key_fn blob equality.
				plan.ToBuild = append(plan.ToBuild, spec)
				continue
			}
			plan.ToRefresh = append(plan.ToRefresh, spec.Name)
		}
	}
	return plan, nil
}

// specFromEntry reconstructs a comparable IndexSpec from a persisted
// entry, for diff's equivalence checks. A malformed blob is treated as a
// spec that can never be equivalent to anything, forcing a rebuild.
func specFromEntry(name string, e SchemaStateEntry) IndexSpec {
	fn, err := DeserializeKeyFn(e.KeyFnBlob)
	if err != nil {
		return IndexSpec{Name: name}
	}
	return IndexSpec{Name: name, KeyFn: fn, ValueType: e.ValueType}
}
