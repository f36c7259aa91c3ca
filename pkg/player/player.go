// Package player implements the in-memory player entity: identity, lazily
// loaded persisted attributes, ephemeral state, and the link to the player's
// network session.
//
// A Player is not safe for concurrent use. The server funnels every access
// through the owning session's event loop, including periodic flushes.
package player

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/ihi-server/ihi/internal/metrics"
	"github.com/ihi-server/ihi/pkg/events"
	"github.com/ihi-server/ihi/pkg/lazy"
	"github.com/ihi-server/ihi/pkg/permissions"
	"github.com/ihi-server/ihi/pkg/protocol"
	"github.com/ihi-server/ihi/pkg/store"
	"github.com/ihi-server/ihi/pkg/world"
)

// Store keys of player attributes.
const (
	KeyLoginID    = "login_id"
	KeyUsername   = "username"
	KeyCreated    = "created"
	KeyLastAccess = "last_access"
	KeyCredits    = "credits"
	KeyFigure     = "figure"
	KeyMotto      = "motto"
	KeySSOTicket  = "sso_ticket"
)

// Sender delivers messages to a client. It is implemented by the network
// session, which the player references but does not own.
type Sender interface {
	SendMessage(msg *protocol.OutgoingMessage) error
}

// Deps are the collaborators a Player is built with.
type Deps struct {
	Store       store.Store
	Events      events.Sink
	Permissions permissions.Evaluator
	Rooms       world.Rooms
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Events == nil {
		d.Events = events.Discard
	}
	if d.Permissions == nil {
		d.Permissions = permissions.NewStoreEvaluator(d.Store)
	}
	if d.Rooms == nil {
		d.Rooms = world.RoomMap{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Figure is a player's avatar look. Parsing the look string is left to the
// figure subsystem.
type Figure struct {
	Look string `json:"look"`
	Male bool   `json:"male"`
}

// MessengerFlags are the player's messenger privacy settings.
type MessengerFlags struct {
	Stalkable   bool
	Requestable bool
	Inviteable  bool
}

// MessengerCategory is a friend-list group.
type MessengerCategory struct {
	ID   int32
	Name string
}

// Player is a persistent actor connected to the server.
type Player struct {
	id     uint32
	entity string
	deps   Deps
	logger *slog.Logger

	loginID     *lazy.Value[uint32]
	username    *lazy.Value[string]
	created     *lazy.Value[time.Time]
	lastAccess  *lazy.Value[time.Time]
	credits     *lazy.Value[int32]
	figure      *lazy.Value[Figure]
	motto       *lazy.Value[string]
	permissions *lazy.Value[permissions.Set]

	displayName string
	loggedIn    bool
	position    world.Position
	roomUnitID  int32
	messenger   MessengerFlags
	categories  map[MessengerCategory]struct{}
	session     Sender

	instance   *InstanceStorage
	persistent *PersistentStorage
}

// Load builds the player with the given id. It fails with a
// *ConstructionError if the id does not exist in the store.
func Load(ctx context.Context, id uint32, deps Deps) (*Player, error) {
	entity := EntityKey(id)
	if _, err := deps.Store.Get(ctx, entity, KeyUsername); err != nil {
		return nil, &ConstructionError{By: "id", Value: entity, Err: err}
	}
	return newPlayer(id, deps), nil
}

// LoadByUsername builds the player owning username.
func LoadByUsername(ctx context.Context, username string, deps Deps) (*Player, error) {
	id, err := lookupIndex(ctx, deps.Store, indexUsername, foldUsername(username))
	if err != nil {
		return nil, &ConstructionError{By: "username", Value: username, Err: err}
	}
	return Load(ctx, id, deps)
}

// LoadBySSOTicket builds the player a single sign-on ticket was issued to.
func LoadBySSOTicket(ctx context.Context, ticket string, deps Deps) (*Player, error) {
	if ticket == "" {
		return nil, &ConstructionError{By: "sso", Value: ticket, Err: store.ErrNotFound}
	}
	id, err := lookupIndex(ctx, deps.Store, indexSSO, ticket)
	if err != nil {
		return nil, &ConstructionError{By: "sso", Value: ticket, Err: err}
	}
	return Load(ctx, id, deps)
}

func newPlayer(id uint32, deps Deps) *Player {
	deps = deps.withDefaults()
	p := &Player{
		id:       id,
		entity:   EntityKey(id),
		deps:     deps,
		logger:   deps.Logger.With("player_id", id),
		instance: NewInstanceStorage(),
	}
	p.persistent = &PersistentStorage{store: deps.Store, entity: p.entity}

	p.loginID = newAttr(p, KeyLoginID, func(ctx context.Context) (uint32, error) {
		n, err := store.GetInt(ctx, deps.Store, p.entity, KeyLoginID)
		if err != nil {
			return 0, err
		}
		if n < 0 || n > math.MaxUint32 {
			return 0, &RangeError{Key: KeyLoginID, Value: n}
		}
		return uint32(n), nil
	})
	p.username = newAttr(p, KeyUsername, func(ctx context.Context) (string, error) {
		return store.GetString(ctx, deps.Store, p.entity, KeyUsername)
	})
	p.created = newAttr(p, KeyCreated, func(ctx context.Context) (time.Time, error) {
		return store.GetTime(ctx, deps.Store, p.entity, KeyCreated)
	})
	p.lastAccess = newAttr(p, KeyLastAccess, func(ctx context.Context) (time.Time, error) {
		return store.GetTime(ctx, deps.Store, p.entity, KeyLastAccess)
	})
	p.credits = newAttr(p, KeyCredits, func(ctx context.Context) (int32, error) {
		n, err := store.GetInt(ctx, deps.Store, p.entity, KeyCredits)
		if err != nil {
			return 0, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, &RangeError{Key: KeyCredits, Value: n}
		}
		return int32(n), nil
	})
	p.figure = newAttr(p, KeyFigure, func(ctx context.Context) (Figure, error) {
		var f Figure
		err := store.GetJSON(ctx, deps.Store, p.entity, KeyFigure, &f)
		return f, err
	})
	p.motto = newAttr(p, KeyMotto, func(ctx context.Context) (string, error) {
		s, err := store.GetString(ctx, deps.Store, p.entity, KeyMotto)
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return s, err
	})
	p.permissions = newAttr(p, permissions.Key, func(ctx context.Context) (permissions.Set, error) {
		return deps.Permissions.Permissions(ctx, id)
	})
	return p
}

// newAttr builds a lazy attribute whose loads are counted.
func newAttr[T any](p *Player, key string, load lazy.Loader[T]) *lazy.Value[T] {
	return lazy.New(key, func(ctx context.Context) (T, error) {
		v, err := load(ctx)
		p.deps.Metrics.AttributeLoaded(key, err)
		if err != nil {
			p.logger.Warn("attribute load failed", "attribute", key, "error", err)
		}
		return v, err
	})
}

// EntityKey returns the store entity name of a player id.
func EntityKey(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ID returns the player id.
func (p *Player) ID() uint32 {
	return p.id
}

// LoginID returns the login the player belongs to.
func (p *Player) LoginID(ctx context.Context) (uint32, error) {
	return p.loginID.Get(ctx)
}

// SetLoginID reassigns the player to another login.
func (p *Player) SetLoginID(id uint32) {
	p.loginID.Set(id)
}

// Username returns the player's username. It cannot be changed.
func (p *Player) Username(ctx context.Context) (string, error) {
	return p.username.Get(ctx)
}

// DisplayName returns the display name, or the username when none is set.
func (p *Player) DisplayName(ctx context.Context) (string, error) {
	if p.displayName != "" {
		return p.displayName, nil
	}
	return p.Username(ctx)
}

// SetDisplayName sets an ephemeral display name. It is never persisted and
// an empty name restores the username.
func (p *Player) SetDisplayName(name string) {
	p.displayName = name
}

// Created returns when the player was created.
func (p *Player) Created(ctx context.Context) (time.Time, error) {
	return p.created.Get(ctx)
}

// LastAccess returns when the player last connected.
func (p *Player) LastAccess(ctx context.Context) (time.Time, error) {
	return p.lastAccess.Get(ctx)
}

// SetLastAccess records a connection time.
func (p *Player) SetLastAccess(t time.Time) {
	p.lastAccess.Set(t)
}

// Credits returns the credit balance.
func (p *Player) Credits(ctx context.Context) (int32, error) {
	return p.credits.Get(ctx)
}

// SetCredits replaces the credit balance.
func (p *Player) SetCredits(n int32) {
	p.credits.Set(n)
}

// Figure returns the avatar look.
func (p *Player) Figure(ctx context.Context) (Figure, error) {
	return p.figure.Get(ctx)
}

// SetFigure replaces the avatar look.
func (p *Player) SetFigure(f Figure) {
	p.figure.Set(f)
}

// Motto returns the status text. A player without one has "".
func (p *Player) Motto(ctx context.Context) (string, error) {
	return p.motto.Get(ctx)
}

// SetMotto replaces the status text. The empty string is allowed.
func (p *Player) SetMotto(motto string) error {
	if !utf8.ValidString(motto) {
		return ErrInvalidMotto
	}
	p.motto.Set(motto)
	return nil
}

// Permissions returns the player's permission set.
func (p *Player) Permissions(ctx context.Context) (permissions.Set, error) {
	return p.permissions.Get(ctx)
}

// HasPermission reports whether the player's permission set grants name.
func (p *Player) HasPermission(ctx context.Context, name string) (bool, error) {
	set, err := p.permissions.Get(ctx)
	if err != nil {
		return false, err
	}
	return p.deps.Permissions.HasPermission(set, name), nil
}

// SSOTicket reads the player's single sign-on ticket. It is never cached.
func (p *Player) SSOTicket(ctx context.Context) (string, error) {
	t, err := store.GetString(ctx, p.deps.Store, p.entity, KeySSOTicket)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return t, err
}

// SetSSOTicket writes the player's single sign-on ticket immediately and
// moves the ticket index. An empty ticket revokes the current one.
func (p *Player) SetSSOTicket(ctx context.Context, ticket string) error {
	old, err := p.SSOTicket(ctx)
	if err != nil {
		return err
	}
	if old != "" {
		if err := p.deps.Store.Delete(ctx, indexSSO, old); err != nil {
			return err
		}
	}
	if ticket == "" {
		return p.deps.Store.Delete(ctx, p.entity, KeySSOTicket)
	}
	if err := store.SetString(ctx, p.deps.Store, p.entity, KeySSOTicket, ticket); err != nil {
		return err
	}
	return store.SetInt(ctx, p.deps.Store, indexSSO, ticket, int64(p.id))
}

// LoggedIn reports whether the player completed login.
func (p *Player) LoggedIn() bool {
	return p.loggedIn
}

// SetLoggedIn marks the player as logged in or out.
func (p *Player) SetLoggedIn(v bool) {
	p.loggedIn = v
}

// Messenger returns the messenger privacy flags.
func (p *Player) Messenger() MessengerFlags {
	return p.messenger
}

// SetMessenger replaces the messenger privacy flags.
func (p *Player) SetMessenger(f MessengerFlags) {
	p.messenger = f
}

// AddMessengerCategory adds c to the player's friend-list groups. It
// reports false if c was already present. Groups are not persisted.
func (p *Player) AddMessengerCategory(c MessengerCategory) bool {
	if _, ok := p.categories[c]; ok {
		return false
	}
	if p.categories == nil {
		p.categories = make(map[MessengerCategory]struct{})
	}
	p.categories[c] = struct{}{}
	return true
}

// RemoveMessengerCategory removes c and reports whether it was present.
func (p *Player) RemoveMessengerCategory(c MessengerCategory) bool {
	if _, ok := p.categories[c]; !ok {
		return false
	}
	delete(p.categories, c)
	return true
}

// MessengerCategories returns the friend-list groups ordered by id.
func (p *Player) MessengerCategories() []MessengerCategory {
	out := make([]MessengerCategory, 0, len(p.categories))
	for c := range p.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b MessengerCategory) int {
		if a.ID != b.ID {
			return int(a.ID) - int(b.ID)
		}
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}

// InstanceStorage returns storage that lives as long as this Player value.
func (p *Player) InstanceStorage() *InstanceStorage {
	return p.instance
}

// PersistentStorage returns storage backed by the store.
func (p *Player) PersistentStorage() *PersistentStorage {
	return p.persistent
}

// Attach links the player to its network session. nil detaches.
func (p *Player) Attach(s Sender) {
	p.session = s
}

// Session returns the attached session, or nil.
func (p *Player) Session() Sender {
	return p.session
}

// SendMessage compiles msg if needed and hands it to the session.
func (p *Player) SendMessage(msg *protocol.OutgoingMessage) error {
	if p.session == nil {
		return ErrNoSession
	}
	if !msg.IsCompiled() {
		if err := msg.Compile(); err != nil {
			return err
		}
	}
	return p.session.SendMessage(msg)
}

// Dirty reports whether any attribute has unflushed changes.
func (p *Player) Dirty() bool {
	return p.loginID.Dirty() || p.lastAccess.Dirty() || p.credits.Dirty() ||
		p.figure.Dirty() || p.motto.Dirty()
}

// Flush writes every dirty attribute back to the store. Failed attributes
// stay dirty and their errors are joined.
func (p *Player) Flush(ctx context.Context) error {
	s := p.deps.Store
	errs := []error{
		flushAttr(ctx, p, p.loginID, func(ctx context.Context, v uint32) error {
			return store.SetInt(ctx, s, p.entity, KeyLoginID, int64(v))
		}),
		flushAttr(ctx, p, p.lastAccess, func(ctx context.Context, v time.Time) error {
			return store.SetTime(ctx, s, p.entity, KeyLastAccess, v)
		}),
		flushAttr(ctx, p, p.credits, func(ctx context.Context, v int32) error {
			return store.SetInt(ctx, s, p.entity, KeyCredits, int64(v))
		}),
		flushAttr(ctx, p, p.figure, func(ctx context.Context, v Figure) error {
			return store.SetJSON(ctx, s, p.entity, KeyFigure, v)
		}),
		flushAttr(ctx, p, p.motto, func(ctx context.Context, v string) error {
			return store.SetString(ctx, s, p.entity, KeyMotto, v)
		}),
	}
	return errors.Join(errs...)
}

func flushAttr[T any](ctx context.Context, p *Player, v *lazy.Value[T], write lazy.Writer[T]) error {
	if !v.Dirty() {
		return nil
	}
	err := v.Flush(ctx, write)
	p.deps.Metrics.AttributeFlushed(v.Name(), err)
	if err != nil {
		p.logger.Error("attribute flush failed", "attribute", v.Name(), "error", err)
	}
	return err
}

// Reload discards every cached attribute so the next read goes to the
// store. Unflushed changes are lost.
func (p *Player) Reload() {
	p.loginID.Reset()
	p.username.Reset()
	p.created.Reset()
	p.lastAccess.Reset()
	p.credits.Reset()
	p.figure.Reset()
	p.motto.Reset()
	p.permissions.Reset()
}
