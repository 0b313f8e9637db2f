package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arkilian/simpleorm/pkg/errors"
	"github.com/arkilian/simpleorm/pkg/types"
)

// Fields returns the persistent fields of rt in serialization order: base
// fields first, then the type's own fields, each in declaration order.
func Fields(rt *types.RecordType) []*types.Field {
	out := make([]*types.Field, len(rt.Fields))
	copy(out, rt.Fields)
	return out
}

// SortedFields returns the persistent fields of rt ordered by name. This is
// the order used for schema text so that identical field sets always
// produce identical statements.
func SortedFields(rt *types.RecordType) []*types.Field {
	out := Fields(rt)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidIdentifier checks if name is usable verbatim as a SQLite table or
// column name.
func ValidIdentifier(name string) bool {
	if len(name) == 0 || len(name) > 100 {
		return false
	}
	// First character must be a letter or underscore
	first := name[0]
	if (first < 'a' || first > 'z') && (first < 'A' || first > 'Z') && first != '_' {
		return false
	}
	// Subsequent characters can be letters, digits, or underscores
	for i := 1; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

// Registry tracks the record types in use so that two distinct descriptors
// never claim the same table.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*types.RecordType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*types.RecordType)}
}

// Register adds rt. Registering the same descriptor twice is a no-op;
// registering a different descriptor under an existing name fails.
func (r *Registry) Register(rt *types.RecordType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[rt.Name]; ok {
		if existing == rt {
			return nil
		}
		return errors.NewInvalidSchemaError(fmt.Sprintf("record type %s is already registered by another descriptor", rt.Name))
	}
	r.types[rt.Name] = rt
	return nil
}

// Lookup returns the record type registered under name.
func (r *Registry) Lookup(name string) (*types.RecordType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.types[name]
	return rt, ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
