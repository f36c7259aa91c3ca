package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ihi-server/ihi/pkg/store"
	"golang.org/x/text/cases"
)

// Index entities map a lookup value to a player id.
const (
	indexUsername = "username"
	indexSSO      = "sso"
)

var usernameFolder = cases.Fold()

// foldUsername returns the case-insensitive index form of a username.
func foldUsername(name string) string {
	return usernameFolder.String(name)
}

func lookupIndex(ctx context.Context, s store.Store, index, value string) (uint32, error) {
	n, err := store.GetInt(ctx, s, index, value)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > int64(^uint32(0)) {
		return 0, fmt.Errorf("player: %s index holds out of range id %d", index, n)
	}
	return uint32(n), nil
}

// Account is the initial record written by Register.
type Account struct {
	ID      uint32
	LoginID uint32
	Name    string
	Credits int32
	Figure  Figure
	Motto   string
	Created time.Time
}

// Register writes a new player record and its username index entry.
// Usernames are unique regardless of case.
func Register(ctx context.Context, s store.Store, a Account) error {
	folded := foldUsername(a.Name)
	if _, err := s.Get(ctx, indexUsername, folded); err == nil {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, a.Name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if a.Created.IsZero() {
		a.Created = time.Now()
	}

	entity := EntityKey(a.ID)
	writes := []func() error{
		func() error { return store.SetInt(ctx, s, entity, KeyLoginID, int64(a.LoginID)) },
		func() error { return store.SetString(ctx, s, entity, KeyUsername, a.Name) },
		func() error { return store.SetTime(ctx, s, entity, KeyCreated, a.Created) },
		func() error { return store.SetTime(ctx, s, entity, KeyLastAccess, a.Created) },
		func() error { return store.SetInt(ctx, s, entity, KeyCredits, int64(a.Credits)) },
		func() error { return store.SetJSON(ctx, s, entity, KeyFigure, a.Figure) },
		func() error { return store.SetString(ctx, s, entity, KeyMotto, a.Motto) },
		func() error { return store.SetInt(ctx, s, indexUsername, folded, int64(a.ID)) },
	}
	for _, w := range writes {
		if err := w(); err != nil {
			return fmt.Errorf("failed to register player %d: %w", a.ID, err)
		}
	}
	return nil
}
