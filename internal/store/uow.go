package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// UnitOfWork owns one transaction per Run and lends tx-bound repositories
// to the callback.
type UnitOfWork struct {
	db     TxBeginner
	opts   pgx.TxOptions
	tracer trace.Tracer
}

type UnitOfWorkOption func(*UnitOfWork)

// WithIsolation sets the isolation level of every transaction.
func WithIsolation(level pgx.TxIsoLevel) UnitOfWorkOption {
	return func(u *UnitOfWork) { u.opts.IsoLevel = level }
}

func NewUnitOfWork(db TxBeginner, opts ...UnitOfWorkOption) *UnitOfWork {
	u := &UnitOfWork{
		db:     db,
		opts:   pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
		tracer: otel.Tracer("github.com/kiranshivaraju/keyhub/internal/store"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Run begins a transaction, calls fn, and commits if fn returns nil. On an
// error, a panic or a cancelled context it rolls back instead. Exactly one of
// commit or rollback happens per call.
func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, r *Repos) error) (err error) {
	ctx, span := u.tracer.Start(ctx, "store.UnitOfWork.Run",
		trace.WithAttributes(attribute.String("db.isolation", string(u.opts.IsoLevel))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := u.db.BeginTx(ctx, u.opts)
	if err != nil {
		return classify("begin transaction", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		// The caller's context may already be cancelled; rollback must still reach the server.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("transaction rollback failed", "error", rbErr)
		}
	}()

	if err := fn(ctx, NewRepos(tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted before commit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit transaction", err)
	}
	done = true
	return nil
}

// Retryable reports whether a failed transaction may succeed on a fresh
// attempt: serialization failures and unique violations raced by a
// concurrent writer.
func Retryable(err error) bool {
	return errors.Is(err, ErrSerialization) || errors.Is(err, ErrDuplicateKey)
}

// RunWithRetry calls tx.Run up to attempts times while the failure is Retryable.
func RunWithRetry(ctx context.Context, tx Transactor, attempts int, fn func(ctx context.Context, r *Repos) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = tx.Run(ctx, fn)
		if err == nil || !Retryable(err) || ctx.Err() != nil {
			return err
		}
		slog.Debug("retrying transaction", "attempt", i+1, "error", err)
	}
	return err
}
