package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/cache"
	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/repositories"
	"ledger-backend/internal/timeutil"
)

// dateFields lists the JSON fields of each store that carry timestamps.
var dateFields = map[db.Store][]string{
	db.StoreCustomers:    {"created_at", "updated_at"},
	db.StoreProducts:     {"created_at", "updated_at"},
	db.StoreSuppliers:    {"created_at", "updated_at"},
	db.StoreOrders:       {"order_date", "created_at", "updated_at"},
	db.StoreTrips:        {"trip_date", "created_at", "updated_at"},
	db.StoreTripExpenses: {"date", "created_at"},
	db.StorePayments:     {"paid_at", "created_at"},
}

// TransferService exports stores as JSON arrays and imports them back as new rows.
type TransferService struct {
	Gate      readiness.HandleSource
	Customers *repositories.CustomerRepository
	Products  *repositories.ProductRepository
	Suppliers *repositories.SupplierRepository
	Orders    *repositories.OrderRepository
	Trips     *repositories.TripRepository
	Expenses  *repositories.TripExpenseRepository
	Payments  *repositories.PaymentRepository
}

// ImportResult reports the ids assigned to imported records, in input order.
type ImportResult struct {
	Store    string  `json:"store"`
	Imported int     `json:"imported"`
	IDs      []int64 `json:"ids"`
}

// Snapshot is a consistent copy of every store.
type Snapshot struct {
	CreatedAt     time.Time             `json:"created_at"`
	SchemaVersion int                   `json:"schema_version"`
	Customers     []*models.Customer    `json:"customers"`
	Products      []*models.Product     `json:"products"`
	Suppliers     []*models.Supplier    `json:"suppliers"`
	Orders        []*models.Order       `json:"orders"`
	Trips         []*models.Trip        `json:"trips"`
	TripExpenses  []*models.TripExpense `json:"trip_expenses"`
	Payments      []*models.Payment     `json:"payments"`
}

// Export writes every record of store to w as a JSON array. Dates are
// rendered as ISO-8601 strings.
func (s *TransferService) Export(ctx context.Context, store db.Store, w io.Writer) (int, error) {
	if _, ok := dateFields[store]; !ok {
		return 0, apperrors.Validation("unknown_store", "unknown store %q", store)
	}
	h, err := s.Gate.AwaitHandle(ctx, store)
	if err != nil {
		return 0, err
	}
	var records any
	count := 0
	err = h.View(ctx, []db.Store{store}, func(tx *db.Tx) error {
		var err error
		records, count, err = s.list(ctx, tx, store)
		return err
	})
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return count, enc.Encode(records)
}

func (s *TransferService) list(ctx context.Context, tx *db.Tx, store db.Store) (any, int, error) {
	switch store {
	case db.StoreCustomers:
		v, err := s.Customers.ListTx(ctx, tx)
		return v, len(v), err
	case db.StoreProducts:
		v, err := s.Products.ListTx(ctx, tx)
		return v, len(v), err
	case db.StoreSuppliers:
		v, err := s.Suppliers.ListTx(ctx, tx)
		return v, len(v), err
	case db.StoreOrders:
		v, err := s.Orders.ListTx(ctx, tx)
		return v, len(v), err
	case db.StoreTrips:
		v, err := s.Trips.ListTx(ctx, tx)
		return v, len(v), err
	case db.StoreTripExpenses:
		v, err := s.Expenses.ListTx(ctx, tx)
		return v, len(v), err
	case db.StorePayments:
		v, err := s.Payments.ListTx(ctx, tx)
		return v, len(v), err
	}
	return nil, 0, apperrors.Validation("unknown_store", "unknown store %q", store)
}

// Snapshot reads every store inside one read transaction.
func (s *TransferService) Snapshot(ctx context.Context) (*Snapshot, error) {
	h, err := s.Gate.AwaitHandle(ctx, db.StoreOrders)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{CreatedAt: timeutil.Now(), SchemaVersion: h.SchemaVersion()}
	err = h.View(ctx, db.AllStores, func(tx *db.Tx) error {
		var err error
		if snap.Customers, err = s.Customers.ListTx(ctx, tx); err != nil {
			return err
		}
		if snap.Products, err = s.Products.ListTx(ctx, tx); err != nil {
			return err
		}
		if snap.Suppliers, err = s.Suppliers.ListTx(ctx, tx); err != nil {
			return err
		}
		if snap.Orders, err = s.Orders.ListTx(ctx, tx); err != nil {
			return err
		}
		if snap.Trips, err = s.Trips.ListTx(ctx, tx); err != nil {
			return err
		}
		if snap.TripExpenses, err = s.Expenses.ListTx(ctx, tx); err != nil {
			return err
		}
		snap.Payments, err = s.Payments.ListTx(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Import parses a JSON array and inserts every record as a new row inside one
// transaction. Ids in the input are dropped and never overwrite existing rows.
func (s *TransferService) Import(ctx context.Context, store db.Store, r io.Reader) (*ImportResult, error) {
	if _, ok := dateFields[store]; !ok {
		return nil, apperrors.Validation("unknown_store", "unknown store %q", store)
	}
	var raw []map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, apperrors.Validation("import_not_json_array", "import file must be a JSON array: %v", err)
	}

	records := make([]importRecord, 0, len(raw))
	for i, rec := range raw {
		ir, err := normalizeRecord(store, rec)
		if err != nil {
			return nil, apperrors.Validation("import_record_invalid", "record %d: %v", i+1, err)
		}
		records = append(records, ir)
	}

	scope := importScope(store)
	h, err := s.Gate.AwaitHandle(ctx, store)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Store: string(store)}
	err = h.Update(ctx, scope, func(tx *db.Tx) error {
		result.IDs = result.IDs[:0]
		state := newImportState()
		for i, rec := range records {
			id, err := s.insert(ctx, tx, store, rec, state)
			if err != nil {
				if apperrors.CodeOf(err) != "" {
					return err
				}
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			if rec.oldID != 0 {
				state.remap[rec.oldID] = id
			}
			result.IDs = append(result.IDs, id)
		}
		return s.recomputeTrips(ctx, tx, state.trips)
	})
	if err != nil {
		return nil, err
	}
	result.Imported = len(result.IDs)
	if store == db.StoreOrders || store == db.StorePayments || store == db.StoreTrips || store == db.StoreTripExpenses {
		cache.InvalidateTripSummaries(ctx)
	}
	log.Printf("[Transfer] imported %d %s", result.Imported, store)
	return result, nil
}

func importScope(store db.Store) []db.Store {
	switch store {
	case db.StorePayments:
		return []db.Store{db.StorePayments, db.StoreOrders, db.StoreTrips}
	case db.StoreOrders:
		return []db.Store{db.StoreOrders, db.StoreTrips}
	}
	return []db.Store{store}
}

// importState carries what one import batch has touched.
type importState struct {
	remap map[int64]int64 // exported payment id -> new id
	trips map[int64]bool
}

func newImportState() *importState {
	return &importState{remap: make(map[int64]int64), trips: make(map[int64]bool)}
}

// recomputeTrips re-derives the status of every trip the batch linked orders
// or payments to.
func (s *TransferService) recomputeTrips(ctx context.Context, tx *db.Tx, tripIDs map[int64]bool) error {
	for id := range tripIDs {
		t, err := s.Trips.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := recomputeTrip(ctx, tx, s.Orders, s.Trips, t); err != nil {
			return err
		}
	}
	return nil
}

type importRecord struct {
	oldID int64
	body  []byte
}

// normalizeRecord strips the id and rebuilds date fields from ISO strings.
func normalizeRecord(store db.Store, rec map[string]any) (importRecord, error) {
	var ir importRecord
	if v, ok := rec["id"]; ok {
		if n, ok := v.(json.Number); ok {
			ir.oldID, _ = n.Int64()
		}
		delete(rec, "id")
	}
	for _, field := range dateFields[store] {
		v, ok := rec[field]
		if !ok || v == nil {
			delete(rec, field)
			continue
		}
		str, ok := v.(string)
		if !ok {
			return ir, fmt.Errorf("%s must be an ISO-8601 string", field)
		}
		t, err := timeutil.ParseISO(str)
		if err != nil {
			return ir, fmt.Errorf("%s: %w", field, err)
		}
		if t.IsZero() {
			delete(rec, field)
			continue
		}
		rec[field] = t.Format(time.RFC3339Nano)
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return ir, err
	}
	ir.body = body
	return ir, nil
}

func (s *TransferService) insert(ctx context.Context, tx *db.Tx, store db.Store, rec importRecord, state *importState) (int64, error) {
	switch store {
	case db.StoreCustomers:
		var c models.Customer
		if err := json.Unmarshal(rec.body, &c); err != nil {
			return 0, err
		}
		if err := c.Validate(); err != nil {
			return 0, err
		}
		return s.Customers.InsertTx(ctx, tx, &c)

	case db.StoreProducts:
		var p models.Product
		if err := json.Unmarshal(rec.body, &p); err != nil {
			return 0, err
		}
		if err := p.Validate(); err != nil {
			return 0, err
		}
		return s.Products.InsertTx(ctx, tx, &p)

	case db.StoreSuppliers:
		var sp models.Supplier
		if err := json.Unmarshal(rec.body, &sp); err != nil {
			return 0, err
		}
		if err := sp.Validate(); err != nil {
			return 0, err
		}
		return s.Suppliers.InsertTx(ctx, tx, &sp)

	case db.StoreOrders:
		return s.insertOrder(ctx, tx, rec, state)

	case db.StoreTrips:
		var t models.Trip
		if err := json.Unmarshal(rec.body, &t); err != nil {
			return 0, err
		}
		if err := t.Validate(); err != nil {
			return 0, err
		}
		// a fresh row has no linked orders yet
		t.Status = models.DeriveTripStatus(t.Status, 0, 0)
		return s.Trips.InsertTx(ctx, tx, &t)

	case db.StoreTripExpenses:
		var e models.TripExpense
		if err := json.Unmarshal(rec.body, &e); err != nil {
			return 0, err
		}
		if err := e.Validate(); err != nil {
			return 0, err
		}
		return s.Expenses.InsertTx(ctx, tx, &e)

	case db.StorePayments:
		return s.insertPayment(ctx, tx, rec, state)
	}
	return 0, apperrors.Validation("unknown_store", "unknown store %q", store)
}

// insertOrder recomputes totals and checks the trip link. The received total
// starts at zero; imported payments rebuild it. A linked order must point at
// an existing trip, which is recomputed once the batch is in.
func (s *TransferService) insertOrder(ctx context.Context, tx *db.Tx, rec importRecord, state *importState) (int64, error) {
	var o models.Order
	if err := json.Unmarshal(rec.body, &o); err != nil {
		return 0, err
	}
	o.PaymentReceived = decimal.Zero
	if o.Status == "" {
		o.Status = models.OrderNew
	}
	if o.Status == models.OrderCompleted {
		o.Status = models.OrderInTransit
	}
	if err := o.Validate(); err != nil {
		return 0, err
	}
	if o.DeliveredTripID != nil {
		if _, err := s.Trips.GetTx(ctx, tx, *o.DeliveredTripID); err != nil {
			if apperrors.IsNotFound(err) {
				return 0, apperrors.Validation("order_trip_missing",
					"order is linked to trip %d, which does not exist", *o.DeliveredTripID)
			}
			return 0, err
		}
		settleStatus(&o)
		state.trips[*o.DeliveredTripID] = true
	}
	return s.Orders.InsertTx(ctx, tx, &o)
}

// insertPayment appends an imported ledger entry and applies it to its order.
// A payment must name the trip its order is linked to; reversals may follow
// an unlink.
func (s *TransferService) insertPayment(ctx context.Context, tx *db.Tx, rec importRecord, state *importState) (int64, error) {
	var p models.Payment
	if err := json.Unmarshal(rec.body, &p); err != nil {
		return 0, err
	}
	if p.Kind == "" {
		p.Kind = models.PaymentKindPayment
	}
	if p.Kind != models.PaymentKindPayment && p.Kind != models.PaymentKindReversal {
		return 0, apperrors.Validation("payment_kind_invalid", "unknown payment kind %q", p.Kind)
	}
	if !p.Amount.IsPositive() {
		return 0, apperrors.Validation("payment_amount_positive", "payment amount must be greater than zero")
	}
	if p.ReversesPaymentID != nil {
		if newID, ok := state.remap[*p.ReversesPaymentID]; ok {
			p.ReversesPaymentID = &newID
		} else {
			p.ReversesPaymentID = nil
		}
	}

	o, err := s.Orders.GetTx(ctx, tx, p.OrderID)
	if err != nil {
		return 0, err
	}
	onTrip := o.DeliveredTripID != nil && *o.DeliveredTripID == p.TripID
	if p.Kind == models.PaymentKindPayment && !onTrip {
		return 0, apperrors.Validation("order_not_on_trip",
			"order %d is not linked to trip %d", p.OrderID, p.TripID)
	}
	o.PaymentReceived = o.PaymentReceived.Add(p.SignedAmount())
	o.Recalculate()
	if o.PaymentReceived.GreaterThan(o.TotalAmount) {
		return 0, apperrors.Validation("payment_exceeds_debt",
			"imported payments exceed the total of order %d", o.ID)
	}
	if o.PaymentReceived.IsNegative() {
		return 0, apperrors.Validation("payment_non_negative",
			"imported reversals take order %d below zero", o.ID)
	}

	id, err := s.Payments.InsertTx(ctx, tx, &p)
	if err != nil {
		return 0, err
	}
	settleStatus(o)
	if err := s.Orders.SaveTx(ctx, tx, o); err != nil {
		return 0, err
	}
	if o.DeliveredTripID != nil {
		state.trips[*o.DeliveredTripID] = true
	}
	return id, nil
}
