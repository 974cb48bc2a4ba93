package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// ErrTransactionConflict — Postgres так и не дал закоммитить транзакцию за отведённое число попыток
var ErrTransactionConflict = errors.New("transaction conflict, please try again")

// коды Postgres, при которых транзакцию имеет смысл повторить целиком
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// TxRunner выполняет функцию внутри транзакции
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Transactor — единая точка входа для всех изменяющих операций.
// Commit при успехе, Rollback при ошибке или панике, повтор при конфликте.
type Transactor struct {
	db       *sql.DB
	log      *slog.Logger
	attempts int
	backoff  time.Duration
}

func NewTransactor(log *slog.Logger, db *sql.DB, attempts int, backoff time.Duration) *Transactor {
	if attempts < 1 {
		attempts = 1
	}
	return &Transactor{db: db, log: log, attempts: attempts, backoff: backoff}
}

func (t *Transactor) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	const op = "storage.Transactor.WithTx"

	var err error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		err = t.runOnce(ctx, fn)
		if err == nil || !IsConflict(err) {
			return err
		}
		t.log.Warn("transaction conflict",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if attempt == t.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(t.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransactionConflict, err)
}

func (t *Transactor) runOnce(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			t.log.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsConflict сообщает, что ошибка — конфликт конкурентной записи
func IsConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
		return true
	}
	return false
}
