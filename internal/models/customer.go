package models

import (
	"strings"
	"time"

	"ledger-backend/internal/apperrors"
)

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomerPatch carries the fields of an update; nil fields are left unchanged.
type CustomerPatch struct {
	Name    *string `json:"name,omitempty"`
	Contact *string `json:"contact,omitempty"`
	Address *string `json:"address,omitempty"`
}

func (c *Customer) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return apperrors.Validation("customer_name_required", "customer name is required")
	}
	return nil
}

func (c *Customer) Apply(p CustomerPatch) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Contact != nil {
		c.Contact = *p.Contact
	}
	if p.Address != nil {
		c.Address = *p.Address
	}
}
