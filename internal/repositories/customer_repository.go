package repositories

import (
	"context"

	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/timeutil"
)

const customerColumns = `id, name, contact, address, created_at, updated_at`

type CustomerRepository struct {
	base
}

func NewCustomerRepository(gate readiness.HandleSource) *CustomerRepository {
	return &CustomerRepository{base{gate: gate}}
}

func scanCustomer(s scanner) (*models.Customer, error) {
	var c models.Customer
	var created, updated int64
	if err := s.Scan(&c.ID, &c.Name, &c.Contact, &c.Address, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = timeutil.FromMillis(created)
	c.UpdatedAt = timeutil.FromMillis(updated)
	return &c, nil
}

func (r *CustomerRepository) Create(ctx context.Context, c *models.Customer) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	err := r.update(ctx, stores(db.StoreCustomers), func(tx *db.Tx) error {
		_, err := r.InsertTx(ctx, tx, c)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.publish(db.StoreCustomers, "created", c.ID)
	return c.ID, nil
}

// InsertTx inserts c as a new row, ignoring any id it carries.
func (r *CustomerRepository) InsertTx(ctx context.Context, tx *db.Tx, c *models.Customer) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = timeutil.Now()
	}
	c.UpdatedAt = timeutil.Now()
	id, err := tx.Insert(ctx, db.StoreCustomers,
		`INSERT INTO customers (name, contact, address, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Contact, c.Address, timeutil.ToMillis(c.CreatedAt), timeutil.ToMillis(c.UpdatedAt))
	if err != nil {
		return 0, err
	}
	c.ID = id
	return id, nil
}

func (r *CustomerRepository) Update(ctx context.Context, id int64, patch models.CustomerPatch) error {
	err := r.update(ctx, stores(db.StoreCustomers), func(tx *db.Tx) error {
		c, err := r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		c.Apply(patch)
		if err := c.Validate(); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, db.StoreCustomers,
			`UPDATE customers SET name = ?, contact = ?, address = ?, updated_at = ? WHERE id = ?`,
			c.Name, c.Contact, c.Address, timeutil.ToMillis(timeutil.Now()), id)
		return err
	})
	if err != nil {
		return err
	}
	r.publish(db.StoreCustomers, "updated", id)
	return nil
}

// Remove deletes only the customer row. Orders keep their customer id and
// name snapshot.
func (r *CustomerRepository) Remove(ctx context.Context, id int64) error {
	err := r.update(ctx, stores(db.StoreCustomers), func(tx *db.Tx) error {
		res, err := tx.Exec(ctx, db.StoreCustomers, `DELETE FROM customers WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res, db.StoreCustomers, id)
	})
	if err != nil {
		return err
	}
	r.publish(db.StoreCustomers, "removed", id)
	return nil
}

func (r *CustomerRepository) GetAll(ctx context.Context) ([]*models.Customer, error) {
	var out []*models.Customer
	err := r.view(ctx, stores(db.StoreCustomers), func(tx *db.Tx) error {
		var err error
		out, err = r.ListTx(ctx, tx)
		return err
	})
	return out, err
}

func (r *CustomerRepository) ListTx(ctx context.Context, tx *db.Tx) ([]*models.Customer, error) {
	rows, err := tx.Query(ctx, db.StoreCustomers, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []*models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	var c *models.Customer
	err := r.view(ctx, stores(db.StoreCustomers), func(tx *db.Tx) error {
		var err error
		c, err = r.GetTx(ctx, tx, id)
		return err
	})
	return c, err
}

func (r *CustomerRepository) GetTx(ctx context.Context, tx *db.Tx, id int64) (*models.Customer, error) {
	c, err := scanCustomer(tx.QueryRow(ctx, db.StoreCustomers,
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, db.StoreCustomers, id)
	}
	return c, nil
}
