package repositories

import (
	"context"

	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/timeutil"
)

const supplierColumns = `id, name, contact, created_at, updated_at`

type SupplierRepository struct {
	base
}

func NewSupplierRepository(gate readiness.HandleSource) *SupplierRepository {
	return &SupplierRepository{base{gate: gate}}
}

func scanSupplier(s scanner) (*models.Supplier, error) {
	var sp models.Supplier
	var created, updated int64
	if err := s.Scan(&sp.ID, &sp.Name, &sp.Contact, &created, &updated); err != nil {
		return nil, err
	}
	sp.CreatedAt = timeutil.FromMillis(created)
	sp.UpdatedAt = timeutil.FromMillis(updated)
	return &sp, nil
}

func (r *SupplierRepository) Create(ctx context.Context, s *models.Supplier) (int64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	err := r.update(ctx, stores(db.StoreSuppliers), func(tx *db.Tx) error {
		_, err := r.InsertTx(ctx, tx, s)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.publish(db.StoreSuppliers, "created", s.ID)
	return s.ID, nil
}

func (r *SupplierRepository) InsertTx(ctx context.Context, tx *db.Tx, s *models.Supplier) (int64, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = timeutil.Now()
	}
	s.UpdatedAt = timeutil.Now()
	id, err := tx.Insert(ctx, db.StoreSuppliers,
		`INSERT INTO suppliers (name, contact, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		s.Name, s.Contact, timeutil.ToMillis(s.CreatedAt), timeutil.ToMillis(s.UpdatedAt))
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

func (r *SupplierRepository) Update(ctx context.Context, id int64, patch models.SupplierPatch) error {
	err := r.update(ctx, stores(db.StoreSuppliers), func(tx *db.Tx) error {
		s, err := r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		s.Apply(patch)
		if err := s.Validate(); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, db.StoreSuppliers,
			`UPDATE suppliers SET name = ?, contact = ?, updated_at = ? WHERE id = ?`,
			s.Name, s.Contact, timeutil.ToMillis(timeutil.Now()), id)
		return err
	})
	if err != nil {
		return err
	}
	r.publish(db.StoreSuppliers, "updated", id)
	return nil
}

// Remove deletes only the supplier row; order items keep the supplier name.
func (r *SupplierRepository) Remove(ctx context.Context, id int64) error {
	err := r.update(ctx, stores(db.StoreSuppliers), func(tx *db.Tx) error {
		res, err := tx.Exec(ctx, db.StoreSuppliers, `DELETE FROM suppliers WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res, db.StoreSuppliers, id)
	})
	if err != nil {
		return err
	}
	r.publish(db.StoreSuppliers, "removed", id)
	return nil
}

func (r *SupplierRepository) GetAll(ctx context.Context) ([]*models.Supplier, error) {
	var out []*models.Supplier
	err := r.view(ctx, stores(db.StoreSuppliers), func(tx *db.Tx) error {
		var err error
		out, err = r.ListTx(ctx, tx)
		return err
	})
	return out, err
}

func (r *SupplierRepository) ListTx(ctx context.Context, tx *db.Tx) ([]*models.Supplier, error) {
	rows, err := tx.Query(ctx, db.StoreSuppliers, `SELECT `+supplierColumns+` FROM suppliers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := []*models.Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (r *SupplierRepository) GetByID(ctx context.Context, id int64) (*models.Supplier, error) {
	var s *models.Supplier
	err := r.view(ctx, stores(db.StoreSuppliers), func(tx *db.Tx) error {
		var err error
		s, err = r.GetTx(ctx, tx, id)
		return err
	})
	return s, err
}

func (r *SupplierRepository) GetTx(ctx context.Context, tx *db.Tx, id int64) (*models.Supplier, error) {
	s, err := scanSupplier(tx.QueryRow(ctx, db.StoreSuppliers,
		`SELECT `+supplierColumns+` FROM suppliers WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, db.StoreSuppliers, id)
	}
	return s, nil
}
