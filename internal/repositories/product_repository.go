package repositories

import (
	"context"
	"sort"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/timeutil"
)

const productColumns = `id, name, unit, current_stock, created_at, updated_at`

type ProductRepository struct {
	base
}

func NewProductRepository(gate readiness.HandleSource) *ProductRepository {
	return &ProductRepository{base{gate: gate}}
}

func scanProduct(s scanner) (*models.Product, error) {
	var p models.Product
	var created, updated int64
	if err := s.Scan(&p.ID, &p.Name, &p.Unit, &p.CurrentStock, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = timeutil.FromMillis(created)
	p.UpdatedAt = timeutil.FromMillis(updated)
	return &p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	err := r.update(ctx, stores(db.StoreProducts), func(tx *db.Tx) error {
		_, err := r.InsertTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.publish(db.StoreProducts, "created", p.ID)
	return p.ID, nil
}

func (r *ProductRepository) InsertTx(ctx context.Context, tx *db.Tx, p *models.Product) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = timeutil.Now()
	}
	p.UpdatedAt = timeutil.Now()
	id, err := tx.Insert(ctx, db.StoreProducts,
		`INSERT INTO products (name, unit, current_stock, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Unit, p.CurrentStock, timeutil.ToMillis(p.CreatedAt), timeutil.ToMillis(p.UpdatedAt))
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (r *ProductRepository) Update(ctx context.Context, id int64, patch models.ProductPatch) error {
	err := r.update(ctx, stores(db.StoreProducts), func(tx *db.Tx) error {
		p, err := r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(patch)
		if err := p.Validate(); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, db.StoreProducts,
			`UPDATE products SET name = ?, unit = ?, current_stock = ?, updated_at = ? WHERE id = ?`,
			p.Name, p.Unit, p.CurrentStock, timeutil.ToMillis(timeutil.Now()), id)
		return err
	})
	if err != nil {
		return err
	}
	r.publish(db.StoreProducts, "updated", id)
	return nil
}

// Remove deletes only the product row; order items keep their product name.
func (r *ProductRepository) Remove(ctx context.Context, id int64) error {
	err := r.update(ctx, stores(db.StoreProducts), func(tx *db.Tx) error {
		res, err := tx.Exec(ctx, db.StoreProducts, `DELETE FROM products WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res, db.StoreProducts, id)
	})
	if err != nil {
		return err
	}
	r.publish(db.StoreProducts, "removed", id)
	return nil
}

func (r *ProductRepository) GetAll(ctx context.Context) ([]*models.Product, error) {
	var out []*models.Product
	err := r.view(ctx, stores(db.StoreProducts), func(tx *db.Tx) error {
		var err error
		out, err = r.ListTx(ctx, tx)
		return err
	})
	return out, err
}

func (r *ProductRepository) ListTx(ctx context.Context, tx *db.Tx) ([]*models.Product, error) {
	rows, err := tx.Query(ctx, db.StoreProducts, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []*models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var p *models.Product
	err := r.view(ctx, stores(db.StoreProducts), func(tx *db.Tx) error {
		var err error
		p, err = r.GetTx(ctx, tx, id)
		return err
	})
	return p, err
}

func (r *ProductRepository) GetTx(ctx context.Context, tx *db.Tx, id int64) (*models.Product, error) {
	p, err := scanProduct(tx.QueryRow(ctx, db.StoreProducts,
		`SELECT `+productColumns+` FROM products WHERE id = ?`+tx.ForUpdate(), id))
	if err != nil {
		return nil, notFound(err, db.StoreProducts, id)
	}
	return p, nil
}

// AdjustStockTx applies per-product stock deltas. Products that no longer
// exist are skipped. A delta that would take stock below zero fails.
func (r *ProductRepository) AdjustStockTx(ctx context.Context, tx *db.Tx, deltas map[int64]int64) error {
	ids := make([]int64, 0, len(deltas))
	for id, d := range deltas {
		if d != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := timeutil.ToMillis(timeutil.Now())
	for _, id := range ids {
		p, err := r.GetTx(ctx, tx, id)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		next := p.CurrentStock + deltas[id]
		if next < 0 {
			return apperrors.Validation("insufficient_stock",
				"only %d %s of %q in stock", p.CurrentStock, p.Unit, p.Name)
		}
		if _, err := tx.Exec(ctx, db.StoreProducts,
			`UPDATE products SET current_stock = ?, updated_at = ? WHERE id = ?`, next, now, id); err != nil {
			return err
		}
	}
	return nil
}

// StockDeltas returns the stock change needed to move from the before items
// to the after items. Items without a product id do not touch stock.
func StockDeltas(before, after []models.OrderItem) map[int64]int64 {
	deltas := make(map[int64]int64)
	for _, it := range before {
		if it.ProductID != nil {
			deltas[*it.ProductID] += it.Qty
		}
	}
	for _, it := range after {
		if it.ProductID != nil {
			deltas[*it.ProductID] -= it.Qty
		}
	}
	return deltas
}
