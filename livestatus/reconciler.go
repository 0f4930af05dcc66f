package livestatus

import (
	"context"
	"fmt"
	"sync"
)

// Result describes one reconciliation.
type Result struct {
	Transition Transition
	// Previous is the record before reconciliation; valid only when Found.
	Previous Record
	Found    bool
	// Record is the record after reconciliation.
	Record Record
}

// Reconciler serializes every mutating reconciliation across all subjects.
type Reconciler struct {
	mu    sync.Mutex
	store Store
}

// NewReconciler returns a Reconciler backed by store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Store exposes the underlying store for read-only reporting.
func (r *Reconciler) Store() Store { return r.store }

// Reconcile reads the persisted record for snap.UID, decides and applies the
// mutation, all under the shared lock.
func (r *Reconciler) Reconcile(ctx context.Context, snap Snapshot) (Result, error) {
	var res Result
	err := r.Locked(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		res, err = tx.Reconcile(ctx, snap)
		return err
	})
	return res, err
}

// Locked runs fn while holding the shared lock. fn must use tx, not the
// Reconciler, to avoid deadlock.
func (r *Reconciler) Locked(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, Tx{store: r.store})
}

// Tx is the view of the store available inside Locked.
type Tx struct {
	store Store
}

// Reconcile is Reconciler.Reconcile without taking the lock.
func (tx Tx) Reconcile(ctx context.Context, snap Snapshot) (Result, error) {
	prev, found, err := tx.store.Get(ctx, snap.UID)
	if err != nil {
		return Result{}, fmt.Errorf("get live status uid=%d: %w", snap.UID, err)
	}
	d := Decide(prev, found, snap)
	if err := tx.store.Apply(ctx, snap.UID, d.Ops); err != nil {
		return Result{}, fmt.Errorf("apply live status uid=%d: %w", snap.UID, err)
	}
	return Result{Transition: d.Transition, Previous: prev, Found: found, Record: d.Record}, nil
}

// SetEndTime records the end of the current session.
func (tx Tx) SetEndTime(ctx context.Context, uid, t int64) error {
	return tx.store.SetEndTime(ctx, uid, t)
}

// Get reads the record for uid.
func (tx Tx) Get(ctx context.Context, uid int64) (Record, bool, error) {
	return tx.store.Get(ctx, uid)
}
