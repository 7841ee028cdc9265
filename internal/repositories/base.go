package repositories

import (
	"context"
	"database/sql"
	"errors"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/cache"
	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/timeutil"
)

type scanner interface {
	Scan(dest ...any) error
}

// EventSink receives committed changes, e.g. the websocket hub.
type EventSink interface {
	Publish(ev models.ChangeEvent)
}

// base obtains the handle through the readiness gate before every
// transaction. The first store of the scope is the probe store.
type base struct {
	gate   readiness.HandleSource
	events EventSink
}

// SetEventSink wires change notifications.
func (b *base) SetEventSink(s EventSink) {
	b.events = s
}

func (b *base) publish(store db.Store, action string, id int64) {
	if b.events == nil {
		return
	}
	b.events.Publish(models.ChangeEvent{
		Type:   "change",
		Store:  string(store),
		Action: action,
		ID:     id,
		At:     timeutil.Now(),
	})
}

// invalidateTrips drops cached trip summaries after a committed change.
func (b *base) invalidateTrips(ctx context.Context, tripIDs ...int64) {
	cache.InvalidateTripSummaries(ctx, tripIDs...)
}

func (b *base) view(ctx context.Context, stores []db.Store, fn func(*db.Tx) error) error {
	h, err := b.gate.AwaitHandle(ctx, stores[0])
	if err != nil {
		return err
	}
	return h.View(ctx, stores, fn)
}

func (b *base) update(ctx context.Context, stores []db.Store, fn func(*db.Tx) error) error {
	h, err := b.gate.AwaitHandle(ctx, stores[0])
	if err != nil {
		return err
	}
	return h.Update(ctx, stores, fn)
}

func stores(s ...db.Store) []db.Store { return s }

// notFound maps sql.ErrNoRows to a NotFound error.
func notFound(err error, store db.Store, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(string(store), id)
	}
	return err
}

// requireAffected turns a zero-row write into NotFound.
func requireAffected(res sql.Result, store db.Store, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(string(store), id)
	}
	return nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func exists(ctx context.Context, tx *db.Tx, store db.Store, id int64) (bool, error) {
	var n int
	err := tx.QueryRow(ctx, store, `SELECT COUNT(*) FROM `+string(store)+` WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}
