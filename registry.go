package norm

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// BackendFactory constructs a Backend from an opaque, backend-specific
// configuration descriptor. Concrete backend packages register themselves
// via RegisterBackend in an init func, the same plugin-registry idiom
// database/sql uses for drivers -- this keeps norm itself free of any
// import on memstore/sqlstore, avoiding an import cycle (those packages
// import norm, not the reverse).
type BackendFactory func(ctx context.Context, cfg any) (Backend, error)

var backendFactories = map[string]BackendFactory{}

// RegisterBackend makes a backend available under name to Open. Intended
// to be called from a backend package's init function.
func RegisterBackend(name string, factory BackendFactory) {
	backendFactories[name] = factory
}

// Open constructs a Store backed by the named, registered backend. Both
// name and cfg are opaque to the core, per §6: "A factory takes a backend
// name and a backend-specific configuration descriptor; both dimensions
// are opaque to the core."
func Open(ctx context.Context, backendName string, cfg any) (*Store, error) {
	factory, ok := backendFactories[backendName]
	if !ok {
		return nil, fmt.Errorf("norm: unknown backend %q", backendName)
	}
	b, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("norm: open backend %q: %w", backendName, err)
	}
	return NewStore(b), nil
}

// NewStore wraps an already-constructed Backend in a Store facade
// directly, bypassing the name-based registry -- useful for tests and for
// backends that don't need Open's indirection.
func NewStore(b Backend) *Store {
	return &Store{
		backend:     b,
		collections: make(map[string]*collectionState),
		processID:   newProcessID(),
	}
}

func newProcessID() ProcessID {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic(fmt.Sprintf("norm: failed to generate process id: %v", err))
	}
	return ProcessID(hex.EncodeToString(raw[:]))
}
