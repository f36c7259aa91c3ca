// Package permissions evaluates named permissions against an entity's
// permission set.
//
// A set maps permission names to a State. Names are dot-separated and a
// trailing ".*" entry covers every name under that prefix:
//
//	{"room.kick": "allow", "room.*": "deny", "*": "allow"}
//
// The most specific matching entry wins. When an exact name and a wildcard
// at the same depth disagree, deny wins.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ihi-server/ihi/pkg/store"
)

// State is the value of one permission entry.
type State uint8

const (
	Undefined State = iota
	Allow
	Deny
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "undefined"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "allow", "true":
		*s = Allow
	case "deny", "false":
		*s = Deny
	case "undefined", "":
		*s = Undefined
	default:
		return fmt.Errorf("permissions: invalid state %q", b)
	}
	return nil
}

// Set is an entity's permission set.
type Set map[string]State

// Key is the store attribute holding an entity's permission set.
const Key = "permissions"

// Evaluator answers permission questions for entities.
type Evaluator interface {
	// Permissions loads the permission set of an entity.
	Permissions(ctx context.Context, entityID uint32) (Set, error)

	// HasPermission reports whether set grants name.
	HasPermission(set Set, name string) bool
}

// StoreEvaluator reads permission sets as JSON from a Store.
type StoreEvaluator struct {
	store store.Store
}

// NewStoreEvaluator creates a StoreEvaluator.
func NewStoreEvaluator(s store.Store) *StoreEvaluator {
	return &StoreEvaluator{store: s}
}

// Permissions implements Evaluator. An entity without a stored set has an
// empty one.
func (e *StoreEvaluator) Permissions(ctx context.Context, entityID uint32) (Set, error) {
	set := Set{}
	err := store.GetJSON(ctx, e.store, strconv.FormatUint(uint64(entityID), 10), Key, &set)
	if errors.Is(err, store.ErrNotFound) {
		return Set{}, nil
	}
	if err != nil {
		return nil, err
	}
	return set, nil
}

// HasPermission implements Evaluator.
func (e *StoreEvaluator) HasPermission(set Set, name string) bool {
	return Resolve(set, name) == Allow
}

// Resolve returns the effective state of name in set.
//
// Candidates are tried from most to least specific: "a.b.c", "a.b.c.*",
// "a.b.*", "a.*", "*".
func Resolve(set Set, name string) State {
	if len(set) == 0 || name == "" {
		return Undefined
	}

	exact := set[name]
	own := set[name+".*"]
	if exact == Deny || own == Deny {
		return Deny
	}
	if exact == Allow || own == Allow {
		return Allow
	}

	prefix := name
	for {
		i := strings.LastIndexByte(prefix, '.')
		if i < 0 {
			break
		}
		prefix = prefix[:i]
		if st := set[prefix+".*"]; st != Undefined {
			return st
		}
	}
	return set["*"]
}

// Grant returns a copy of set with name allowed.
func (s Set) Grant(name string) Set {
	return s.with(name, Allow)
}

// Revoke returns a copy of set with name denied.
func (s Set) Revoke(name string) Set {
	return s.with(name, Deny)
}

func (s Set) with(name string, st State) Set {
	out := make(Set, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = st
	return out
}

// Save writes set for entityID as JSON.
func Save(ctx context.Context, s store.Store, entityID uint32, set Set) error {
	return store.SetJSON(ctx, s, strconv.FormatUint(uint64(entityID), 10), Key, set)
}
