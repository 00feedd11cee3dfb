// Package memstore is an in-memory record store used by tests. Rows are kept
// by value so callers never alias stored state, and a transaction snapshots
// every table so a rollback restores it exactly.
package memstore

import (
	"context"
	"sync"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
)

type table[T any] struct {
	rows []T
	key  func(*T) string
	// unique reports whether two distinct rows violate a unique constraint
	unique func(a, b *T) bool
}

func (t *table[T]) violates(row *T, skip int) bool {
	if t.unique == nil {
		return false
	}
	for i := range t.rows {
		if i != skip && t.unique(&t.rows[i], row) {
			return true
		}
	}
	return false
}

func (t *table[T]) indexOf(row *T) int {
	k := t.key(row)
	for i := range t.rows {
		if t.key(&t.rows[i]) == k {
			return i
		}
	}
	return -1
}

func (t *table[T]) snapshot() []T {
	return append([]T(nil), t.rows...)
}

type gateway[T any] struct {
	t *table[T]
}

func (g gateway[T]) FindOne(_ context.Context, clauses ...repositories.Clause[T]) (*T, error) {
	cond := repositories.AllOf(clauses...)
	for i := range g.t.rows {
		if cond.Matches(&g.t.rows[i]) {
			row := g.t.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (g gateway[T]) FindOneForUpdate(ctx context.Context, clauses ...repositories.Clause[T]) (*T, error) {
	return g.FindOne(ctx, clauses...)
}

func (g gateway[T]) Count(_ context.Context, cond repositories.Condition[T]) (int64, error) {
	var n int64
	for i := range g.t.rows {
		if cond.Matches(&g.t.rows[i]) {
			n++
		}
	}
	return n, nil
}

func (g gateway[T]) List(_ context.Context, limit int, clauses ...repositories.Clause[T]) ([]T, error) {
	cond := repositories.AllOf(clauses...)
	var out []T
	for i := range g.t.rows {
		if limit > 0 && len(out) == limit {
			break
		}
		if cond.Matches(&g.t.rows[i]) {
			out = append(out, g.t.rows[i])
		}
	}
	return out, nil
}

func (g gateway[T]) Add(_ context.Context, row *T) error {
	if g.t.indexOf(row) >= 0 || g.t.violates(row, -1) {
		return apperrors.Conflict("record already exists")
	}
	g.t.rows = append(g.t.rows, *row)
	return nil
}

func (g gateway[T]) Update(_ context.Context, row *T) error {
	i := g.t.indexOf(row)
	if g.t.violates(row, i) {
		return apperrors.Conflict("record already exists")
	}
	if i >= 0 {
		g.t.rows[i] = *row
		return nil
	}
	g.t.rows = append(g.t.rows, *row)
	return nil
}

func (g gateway[T]) Delete(_ context.Context, row *T) error {
	if i := g.t.indexOf(row); i >= 0 {
		g.t.rows = append(g.t.rows[:i], g.t.rows[i+1:]...)
	}
	return nil
}

// Store holds every table. It implements repositories.Session for direct,
// non-transactional access (seeding and assertions) and Begin for units of work.
type Store struct {
	mu            sync.Mutex
	users         *table[models.User]
	events        *table[models.Event]
	attendees     *table[models.EventAttendee]
	followers     *table[models.UserFollower]
	hiverRequests *table[models.HiverRequest]
	userHivers    *table[models.UserHiver]
	media         *table[models.Media]

	// BeginErr and CommitErr let tests simulate transaction failures
	BeginErr  error
	CommitErr error
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:     &table[models.User]{key: func(u *models.User) string { return u.GUID.String() }},
		events:    &table[models.Event]{key: func(e *models.Event) string { return e.GUID.String() }},
		attendees: &table[models.EventAttendee]{key: func(a *models.EventAttendee) string { return a.EventGUID.String() + "/" + a.UserGUID.String() }},
		followers: &table[models.UserFollower]{
			key: func(f *models.UserFollower) string { return f.GUID.String() },
			unique: func(a, b *models.UserFollower) bool {
				return a.FollowerGUID == b.FollowerGUID && a.UserGUID == b.UserGUID
			},
		},
		hiverRequests: &table[models.HiverRequest]{
			key: func(r *models.HiverRequest) string { return r.GUID.String() },
			unique: func(a, b *models.HiverRequest) bool {
				return a.SenderGUID == b.SenderGUID && a.ReceiverGUID == b.ReceiverGUID &&
					a.Status != models.HiverRequestDeclined && b.Status != models.HiverRequestDeclined
			},
		},
		userHivers: &table[models.UserHiver]{key: func(h *models.UserHiver) string { return h.GUID.String() }},
		media:      &table[models.Media]{key: func(m *models.Media) string { return m.GUID.String() }},
	}
}

func (s *Store) Users() repositories.Gateway[models.User] {
	return gateway[models.User]{t: s.users}
}

func (s *Store) Events() repositories.Gateway[models.Event] {
	return gateway[models.Event]{t: s.events}
}

func (s *Store) Attendees() repositories.Gateway[models.EventAttendee] {
	return gateway[models.EventAttendee]{t: s.attendees}
}

func (s *Store) Followers() repositories.Gateway[models.UserFollower] {
	return gateway[models.UserFollower]{t: s.followers}
}

func (s *Store) HiverRequests() repositories.Gateway[models.HiverRequest] {
	return gateway[models.HiverRequest]{t: s.hiverRequests}
}

func (s *Store) UserHivers() repositories.Gateway[models.UserHiver] {
	return gateway[models.UserHiver]{t: s.userHivers}
}

func (s *Store) Media() repositories.Gateway[models.Media] {
	return gateway[models.Media]{t: s.media}
}

// Begin opens a transaction. Transactions are serialized on the store mutex.
func (s *Store) Begin(_ context.Context) (repositories.Tx, error) {
	if s.BeginErr != nil {
		return nil, s.BeginErr
	}
	s.mu.Lock()
	return &tx{
		store:         s,
		users:         s.users.snapshot(),
		events:        s.events.snapshot(),
		attendees:     s.attendees.snapshot(),
		followers:     s.followers.snapshot(),
		hiverRequests: s.hiverRequests.snapshot(),
		userHivers:    s.userHivers.snapshot(),
		media:         s.media.snapshot(),
	}, nil
}

type tx struct {
	store         *Store
	done          bool
	users         []models.User
	events        []models.Event
	attendees     []models.EventAttendee
	followers     []models.UserFollower
	hiverRequests []models.HiverRequest
	userHivers    []models.UserHiver
	media         []models.Media
}

func (t *tx) Session() repositories.Session {
	return t.store
}

func (t *tx) Commit() error {
	if t.done {
		return nil
	}
	if t.store.CommitErr != nil {
		return t.store.CommitErr
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	s := t.store
	s.users.rows = t.users
	s.events.rows = t.events
	s.attendees.rows = t.attendees
	s.followers.rows = t.followers
	s.hiverRequests.rows = t.hiverRequests
	s.userHivers.rows = t.userHivers
	s.media.rows = t.media
	t.done = true
	s.mu.Unlock()
	return nil
}
