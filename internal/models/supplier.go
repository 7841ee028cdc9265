package models

import (
	"strings"
	"time"

	"ledger-backend/internal/apperrors"
)

type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SupplierPatch struct {
	Name    *string `json:"name,omitempty"`
	Contact *string `json:"contact,omitempty"`
}

func (s *Supplier) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return apperrors.Validation("supplier_name_required", "supplier name is required")
	}
	return nil
}

func (s *Supplier) Apply(p SupplierPatch) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Contact != nil {
		s.Contact = *p.Contact
	}
}
