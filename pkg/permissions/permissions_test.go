package permissions

import (
	"context"
	"testing"

	"github.com/ihi-server/ihi/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	set := Set{
		"room.kick":       Allow,
		"room.ban":        Deny,
		"room.*":          Allow,
		"catalog.buy.*":   Deny,
		"catalog.buy":     Allow,
		"moderation.*":    Deny,
		"moderation.mute": Allow,
	}

	tests := []struct {
		name string
		want State
	}{
		{"room.kick", Allow},
		{"room.ban", Deny},
		{"room.mute", Allow},
		{"room.settings.edit", Allow},
		{"catalog.buy", Deny},
		{"catalog.buy.rare", Deny},
		{"catalog.sell", Undefined},
		{"moderation.mute", Allow},
		{"moderation.alert", Deny},
		{"unknown", Undefined},
		{"", Undefined},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(set, tc.name))
		})
	}
}

func TestResolveRootWildcard(t *testing.T) {
	set := Set{"*": Allow, "room.*": Deny}
	assert.Equal(t, Allow, Resolve(set, "catalog.buy"))
	assert.Equal(t, Deny, Resolve(set, "room.kick"))
	assert.Equal(t, Undefined, Resolve(nil, "room.kick"))
}

func TestStoreEvaluator(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := NewStoreEvaluator(s)

	set, err := e.Permissions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, set)
	assert.False(t, e.HasPermission(set, "room.kick"))

	require.NoError(t, Save(ctx, s, 1, Set{}.Grant("room.*").Revoke("room.ban")))

	raw, err := s.Get(ctx, "1", Key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"room.*":"allow","room.ban":"deny"}`, string(raw))

	set, err = e.Permissions(ctx, 1)
	require.NoError(t, err)
	assert.True(t, e.HasPermission(set, "room.kick"))
	assert.False(t, e.HasPermission(set, "room.ban"))

	require.NoError(t, s.Set(ctx, "2", Key, []byte(`{"x":"maybe"}`)))
	_, err = e.Permissions(ctx, 2)
	assert.Error(t, err)
}

func TestGrantCopies(t *testing.T) {
	base := Set{"a": Allow}
	next := base.Revoke("a")
	assert.Equal(t, Allow, base["a"])
	assert.Equal(t, Deny, next["a"])
}

func TestStateText(t *testing.T) {
	var s State
	require.NoError(t, s.UnmarshalText([]byte("TRUE")))
	assert.Equal(t, Allow, s)
	require.NoError(t, s.UnmarshalText([]byte("deny")))
	assert.Equal(t, Deny, s)
	assert.Error(t, s.UnmarshalText([]byte("?")))
	assert.Equal(t, "undefined", Undefined.String())
}
