package models

import (
	"strings"
	"time"

	"ledger-backend/internal/apperrors"
)

type Product struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	CurrentStock int64     `json:"current_stock"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ProductPatch struct {
	Name         *string `json:"name,omitempty"`
	Unit         *string `json:"unit,omitempty"`
	CurrentStock *int64  `json:"current_stock,omitempty"`
}

func (p *Product) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperrors.Validation("product_name_required", "product name is required")
	}
	if p.CurrentStock < 0 {
		return apperrors.Validation("stock_non_negative", "stock of %q cannot be negative", p.Name)
	}
	return nil
}

func (p *Product) Apply(patch ProductPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Unit != nil {
		p.Unit = *patch.Unit
	}
	if patch.CurrentStock != nil {
		p.CurrentStock = *patch.CurrentStock
	}
}
