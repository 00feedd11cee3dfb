package database

import (
	"context"

	"example.com/backstage/services/partyup/config"
	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the record store and configures the connection pool
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying DB connection")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.AutoMigrate {
		if err := models.SetupModels(db); err != nil {
			return nil, errors.Wrap(err, "failed to run migrations")
		}
	}

	return db, nil
}

// Beginner opens record store transactions
type Beginner interface {
	Begin(ctx context.Context) (repositories.Tx, error)
}

type gormBeginner struct {
	db *gorm.DB
}

type gormTx struct {
	tx *gorm.DB
}

func (b gormBeginner) Begin(ctx context.Context) (repositories.Tx, error) {
	tx := b.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return gormTx{tx: tx}, nil
}

func (t gormTx) Session() repositories.Session { return repositories.NewGormSession(t.tx) }
func (t gormTx) Commit() error                 { return t.tx.Commit().Error }
func (t gormTx) Rollback() error               { return t.tx.Rollback().Error }

// UnitOfWork scopes one record store transaction around a function
type UnitOfWork struct {
	begin Beginner
}

// NewUnitOfWork creates a unit of work over a gorm connection
func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{begin: gormBeginner{db: db}}
}

// NewUnitOfWorkWith creates a unit of work over any transaction source
func NewUnitOfWorkWith(b Beginner) *UnitOfWork {
	return &UnitOfWork{begin: b}
}

// Do runs fn inside a transaction. Taxonomy errors from fn roll back and are
// returned unchanged; anything else, including a panic, rolls back and becomes
// an Internal error. A failed commit is a record store StorageError.
// Callbacks registered with repositories.AfterCommit run once the commit succeeds.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s repositories.Session) error) (err error) {
	txCtx, runHooks := repositories.WithCommitHooks(ctx)
	tx, err := u.begin.Begin(ctx)
	if err != nil {
		return apperrors.Storage(apperrors.BackendRecordStore, errors.Wrap(err, "failed to begin transaction"))
	}

	committed := false
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Unit of work panicked, rolling back")
			err = apperrors.Internal(errors.Errorf("panic: %v", r))
		}
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("Failed to roll back transaction")
		}
	}()

	if err := fn(txCtx, tx.Session()); err != nil {
		if _, ok := apperrors.As(err); ok {
			return err
		}
		log.Error().Err(err).Msg("Unexpected error in unit of work")
		return apperrors.Internal(err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Storage(apperrors.BackendRecordStore, errors.Wrap(err, "failed to commit transaction"))
	}
	committed = true
	runHooks(ctx)
	return nil
}
