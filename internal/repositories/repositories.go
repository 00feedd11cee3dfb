package repositories

import (
	"context"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gateway is the record store access for one entity type. Every call runs
// inside the caller's transaction; writes are sent immediately but never
// committed here.
type Gateway[T any] interface {
	// FindOne returns the first row matching every clause, or nil when none does
	FindOne(ctx context.Context, clauses ...Clause[T]) (*T, error)
	// FindOneForUpdate is FindOne holding a row lock until the transaction ends
	FindOneForUpdate(ctx context.Context, clauses ...Clause[T]) (*T, error)
	Count(ctx context.Context, cond Condition[T]) (int64, error)
	List(ctx context.Context, limit int, clauses ...Clause[T]) ([]T, error)
	Add(ctx context.Context, row *T) error
	Update(ctx context.Context, row *T) error
	Delete(ctx context.Context, row *T) error
}

// Session groups the gateways bound to one unit of work
type Session interface {
	Users() Gateway[models.User]
	Events() Gateway[models.Event]
	Attendees() Gateway[models.EventAttendee]
	Followers() Gateway[models.UserFollower]
	HiverRequests() Gateway[models.HiverRequest]
	UserHivers() Gateway[models.UserHiver]
	Media() Gateway[models.Media]
}

type gormGateway[T any] struct {
	db *gorm.DB
}

func (g gormGateway[T]) FindOne(ctx context.Context, clauses ...Clause[T]) (*T, error) {
	return g.findOne(g.db.WithContext(ctx), clauses)
}

func (g gormGateway[T]) FindOneForUpdate(ctx context.Context, clauses ...Clause[T]) (*T, error) {
	return g.findOne(g.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), clauses)
}

func (g gormGateway[T]) findOne(q *gorm.DB, clauses []Clause[T]) (*T, error) {
	var row T
	err := where(q, AllOf(clauses...)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageError(err, "failed to find record")
	}
	return &row, nil
}

func (g gormGateway[T]) Count(ctx context.Context, cond Condition[T]) (int64, error) {
	var n int64
	err := where(g.db.WithContext(ctx).Model(new(T)), cond).Count(&n).Error
	if err != nil {
		return 0, storageError(err, "failed to count records")
	}
	return n, nil
}

func (g gormGateway[T]) List(ctx context.Context, limit int, clauses ...Clause[T]) ([]T, error) {
	var rows []T
	q := where(g.db.WithContext(ctx), AllOf(clauses...))
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, storageError(err, "failed to list records")
	}
	return rows, nil
}

func (g gormGateway[T]) Add(ctx context.Context, row *T) error {
	if err := g.db.WithContext(ctx).Create(row).Error; err != nil {
		return storageError(err, "failed to create record")
	}
	return nil
}

func (g gormGateway[T]) Update(ctx context.Context, row *T) error {
	if err := g.db.WithContext(ctx).Save(row).Error; err != nil {
		return storageError(err, "failed to update record")
	}
	return nil
}

func (g gormGateway[T]) Delete(ctx context.Context, row *T) error {
	if err := g.db.WithContext(ctx).Delete(row).Error; err != nil {
		return storageError(err, "failed to delete record")
	}
	return nil
}

func where[T any](q *gorm.DB, cond Condition[T]) *gorm.DB {
	expr, args := cond.SQL()
	if expr == "" {
		return q
	}
	return q.Where(expr, args...)
}

func storageError(err error, msg string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Conflict("record already exists")
	}
	return apperrors.Storage(apperrors.BackendRecordStore, errors.Wrap(err, msg))
}

// GormSession binds every gateway to one gorm transaction
type GormSession struct {
	tx *gorm.DB
}

// NewGormSession creates a session over tx
func NewGormSession(tx *gorm.DB) *GormSession {
	return &GormSession{tx: tx}
}

func (s *GormSession) Users() Gateway[models.User] {
	return gormGateway[models.User]{db: s.tx}
}

func (s *GormSession) Events() Gateway[models.Event] {
	return gormGateway[models.Event]{db: s.tx}
}

func (s *GormSession) Attendees() Gateway[models.EventAttendee] {
	return gormGateway[models.EventAttendee]{db: s.tx}
}

func (s *GormSession) Followers() Gateway[models.UserFollower] {
	return gormGateway[models.UserFollower]{db: s.tx}
}

func (s *GormSession) HiverRequests() Gateway[models.HiverRequest] {
	return gormGateway[models.HiverRequest]{db: s.tx}
}

func (s *GormSession) UserHivers() Gateway[models.UserHiver] {
	return gormGateway[models.UserHiver]{db: s.tx}
}

func (s *GormSession) Media() Gateway[models.Media] {
	return gormGateway[models.Media]{db: s.tx}
}

// Tx is an open record store transaction
type Tx interface {
	Session() Session
	Commit() error
	Rollback() error
}
