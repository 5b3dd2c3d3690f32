package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx embeds pgx.Tx so only Commit and Rollback need real bodies.
type fakeTx struct {
	pgx.Tx
	commits   int
	rollbacks int
	commitErr error
}

func (f *fakeTx) Commit(context.Context) error {
	f.commits++
	if f.commitErr != nil {
		return f.commitErr
	}
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.commits > 0 {
		return pgx.ErrTxClosed
	}
	f.rollbacks++
	return nil
}

type fakeBeginner struct {
	tx   *fakeTx
	err  error
	opts pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestRun_CommitsExactlyOnce(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	uow := NewUnitOfWork(b)

	var got *Repos
	err := uow.Run(context.Background(), func(_ context.Context, r *Repos) error {
		got = r
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, b.tx.commits)
	assert.Equal(t, 0, b.tx.rollbacks)
	assert.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)
}

func TestRun_RollsBackExactlyOnceOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")

	err := NewUnitOfWork(b).Run(context.Background(), func(context.Context, *Repos) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.tx.commits)
	assert.Equal(t, 1, b.tx.rollbacks)
}

func TestRun_RollsBackOnPanic(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}

	assert.PanicsWithValue(t, "bug", func() {
		_ = NewUnitOfWork(b).Run(context.Background(), func(context.Context, *Repos) error { panic("bug") })
	})
	assert.Equal(t, 0, b.tx.commits)
	assert.Equal(t, 1, b.tx.rollbacks)
}

func TestRun_CancelledContextRollsBack(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	ctx, cancel := context.WithCancel(context.Background())

	err := NewUnitOfWork(b).Run(ctx, func(context.Context, *Repos) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.tx.commits)
	assert.Equal(t, 1, b.tx.rollbacks)
}

func TestRun_BeginFailure(t *testing.T) {
	b := &fakeBeginner{err: errors.New("conn refused")}
	called := false

	err := NewUnitOfWork(b).Run(context.Background(), func(context.Context, *Repos) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestRun_IsolationOption(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	require.NoError(t, NewUnitOfWork(b, WithIsolation(pgx.Serializable)).
		Run(context.Background(), func(context.Context, *Repos) error { return nil }))
	assert.Equal(t, pgx.Serializable, b.opts.IsoLevel)
}

type countingTx struct {
	errs  []error
	calls int
}

func (c *countingTx) Run(ctx context.Context, fn func(ctx context.Context, r *Repos) error) error {
	i := c.calls
	c.calls++
	if i < len(c.errs) {
		return c.errs[i]
	}
	return fn(ctx, &Repos{})
}

func TestRunWithRetry(t *testing.T) {
	dup := &ConstraintError{Kind: ErrDuplicateKey, Constraint: ConstraintUserExternalID}
	noop := func(context.Context, *Repos) error { return nil }

	tx := &countingTx{errs: []error{dup, ErrSerialization}}
	require.NoError(t, RunWithRetry(context.Background(), tx, 3, noop))
	assert.Equal(t, 3, tx.calls)

	tx = &countingTx{errs: []error{dup, dup, dup}}
	assert.ErrorIs(t, RunWithRetry(context.Background(), tx, 3, noop), ErrDuplicateKey)
	assert.Equal(t, 3, tx.calls)

	boom := errors.New("boom")
	tx = &countingTx{errs: []error{boom}}
	assert.ErrorIs(t, RunWithRetry(context.Background(), tx, 3, noop), boom)
	assert.Equal(t, 1, tx.calls)
}

func TestPaginate(t *testing.T) {
	cases := []struct {
		limit, offset  int
		wantL, wantOff int
	}{
		{50, 0, 50, 0},
		{0, 0, 1, 0},
		{-5, -3, 1, 0},
		{101, 10, 100, 10},
		{100, 7, 100, 7},
	}
	for _, c := range cases {
		p := Paginate(c.limit, c.offset)
		assert.Equal(t, c.wantL, p.Limit)
		assert.Equal(t, c.wantOff, p.Offset)
	}
}

func TestViolates(t *testing.T) {
	err := &ConstraintError{Kind: ErrDuplicateKey, Constraint: ConstraintOneActiveKey}
	assert.True(t, Violates(err, ConstraintOneActiveKey))
	assert.False(t, Violates(err, ConstraintKID))
	assert.False(t, Violates(errors.New("x"), ConstraintKID))
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.NotErrorIs(t, err, ErrForeignKey)
}

func TestClassify(t *testing.T) {
	pg := func(code string) error { return &pgconn.PgError{Code: code, ConstraintName: "c"} }

	assert.Nil(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", pgx.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, classify("op", pg("23505")), ErrDuplicateKey)
	assert.ErrorIs(t, classify("op", pg("23503")), ErrForeignKey)
	assert.ErrorIs(t, classify("op", pg("40001")), ErrSerialization)
	assert.ErrorIs(t, classify("op", pg("40P01")), ErrSerialization)

	err := classify("create user", pg("22001"))
	assert.ErrorIs(t, err, ErrValueTooLong)
	assert.Contains(t, err.Error(), "create user")
	assert.NotErrorIs(t, classify("op", pg("XX000")), ErrValueTooLong)
}
