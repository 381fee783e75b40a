// Package txn runs request-scoped transactions and defers side effects until they commit.
package txn

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

type (
	hooksKey struct{}
	txKey    struct{}
)

type commitHooks struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	queue []func(context.Context)
}

func (h *commitHooks) add(key string, fn func(context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if key != "" {
		if _, seen := h.keys[key]; seen {
			return
		}
		h.keys[key] = struct{}{}
	}
	h.queue = append(h.queue, fn)
}

func (h *commitHooks) drain() []func(context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	queue := h.queue
	h.queue = nil
	h.keys = make(map[string]struct{})
	return queue
}

// Run executes fn in a transaction. Hooks registered through AfterCommit while fn runs are
// executed in registration order once the outermost transaction commits, and dropped on rollback.
// A nested Run (ctx already carries a transaction) opens a savepoint and shares the outer hooks.
func Run(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if _, nested := ctx.Value(hooksKey{}).(*commitHooks); nested {
		return From(ctx, db).Transaction(func(tx *gorm.DB) error {
			return fn(context.WithValue(ctx, txKey{}, tx), tx)
		})
	}

	hooks := &commitHooks{keys: make(map[string]struct{})}
	hooksCtx := context.WithValue(ctx, hooksKey{}, hooks)
	err := db.WithContext(hooksCtx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(hooksCtx, txKey{}, tx), tx)
	})
	if err != nil {
		return err
	}
	for _, hook := range hooks.drain() {
		hook(ctx)
	}
	return nil
}

// From returns the transaction carried by ctx, or db bound to ctx when there is none.
func From(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}

// AfterCommit schedules fn to run after the transaction carried by ctx commits. Hooks sharing a
// non-empty key run once per transaction. Without a transaction in ctx, fn runs immediately.
func AfterCommit(ctx context.Context, key string, fn func(context.Context)) {
	hooks, ok := ctx.Value(hooksKey{}).(*commitHooks)
	if !ok {
		fn(ctx)
		return
	}
	hooks.add(key, fn)
}

// inTransaction reports whether ctx was produced by Run.
func inTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(hooksKey{}).(*commitHooks)
	return ok
}
