package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

// fakeTx embeds pgx.Tx so only the methods WithTx calls need bodies.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error { f.committed = true; return nil }
func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	tx    *fakeTx
	calls int
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.calls++
	return b.tx, nil
}

func TestWithTx_Commits(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	err := WithTx(context.Background(), b, func(ctx context.Context) error {
		if TxFromContext(ctx) == nil {
			t.Error("expected transaction on context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.tx.committed {
		t.Error("expected commit")
	}
	if b.tx.rolledBack {
		t.Error("expected no rollback after commit")
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed {
		t.Error("expected no commit")
	}
	if !b.tx.rolledBack {
		t.Error("expected rollback")
	}
}

func TestWithTx_JoinsAmbientTransaction(t *testing.T) {
	outer := &fakeTx{}
	ctx := context.WithValue(context.Background(), DBTxKey, pgx.Tx(outer))
	b := &fakeBeginner{tx: &fakeTx{}}

	err := WithTx(ctx, b, func(inner context.Context) error {
		if TxFromContext(inner) != outer {
			t.Error("expected the ambient transaction to be reused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.calls != 0 {
		t.Errorf("expected no new transaction, got %d Begin calls", b.calls)
	}
	if outer.committed {
		t.Error("nested WithTx must not commit the owner's transaction")
	}
}

func TestConn_FallsBack(t *testing.T) {
	if Conn(context.Background(), nil) != nil {
		t.Error("expected fallback when context carries nothing")
	}
	tx := &fakeTx{}
	ctx := context.WithValue(context.Background(), DBTxKey, pgx.Tx(tx))
	if Conn(ctx, nil) != Queryable(tx) {
		t.Error("expected transaction from context")
	}
}
