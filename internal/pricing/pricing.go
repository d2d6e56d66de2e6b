// Package pricing keeps a product's sale price consistent with its cost price
// and margin percentage.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Derive returns costPrice * (1 + marginPct/100) rounded to two decimal
// places, half away from zero.
func Derive(costPrice, marginPct decimal.Decimal) (decimal.Decimal, error) {
	if costPrice.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: cost price must not be negative", store.ErrInvalidArgument)
	}
	if marginPct.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: margin percent must not be negative", store.ErrInvalidArgument)
	}
	factor := decimal.NewFromInt(1).Add(marginPct.Div(hundred))
	return costPrice.Mul(factor).Round(2), nil
}

// ResolveCreate fills the price fields of a new product. A missing margin
// defaults to 0 and a missing cost price to the supplied sale price. The sale
// price is always derived from the resolved cost/margin pair; a supplied sale
// price only matters as the cost fallback, so with margin 0 it survives as
// the derived value, and with an explicit cost or margin it is superseded.
func ResolveCreate(req domain.ProductCreateRequest) (cost, margin, sale decimal.Decimal, err error) {
	margin = decimal.Zero
	if req.MarginPct != nil {
		margin = *req.MarginPct
	}

	cost = decimal.Zero
	switch {
	case req.CostPrice != nil:
		cost = *req.CostPrice
	case req.SalePrice != nil:
		cost = *req.SalePrice
	}

	sale, err = Derive(cost, margin)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, err
	}
	return cost, margin, sale, nil
}

// ResolveUpdate merges a partial update into an existing product. An explicit
// sale price is trusted verbatim and never reverse-derived; otherwise any
// change to cost or margin re-derives the sale price from the merged pair.
func ResolveUpdate(existing domain.Product, req domain.ProductUpdateRequest) (domain.Product, error) {
	merged := existing
	if req.Name != nil {
		merged.Name = *req.Name
	}
	if req.Description != nil {
		merged.Description = *req.Description
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, fmt.Errorf("%w: stock must not be negative", store.ErrInvalidArgument)
		}
		merged.Stock = *req.Stock
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, fmt.Errorf("%w: minimum stock must not be negative", store.ErrInvalidArgument)
		}
		merged.MinStock = *req.MinStock
	}
	if req.SupplierID != nil {
		merged.SupplierID = req.SupplierID
	}
	if req.CostPrice != nil {
		merged.CostPrice = *req.CostPrice
	}
	if req.MarginPct != nil {
		merged.MarginPct = *req.MarginPct
	}

	switch {
	case req.SalePrice != nil:
		if req.SalePrice.IsNegative() || merged.CostPrice.IsNegative() || merged.MarginPct.IsNegative() {
			return domain.Product{}, fmt.Errorf("%w: prices must not be negative", store.ErrInvalidArgument)
		}
		merged.SalePrice = req.SalePrice.Round(2)
	case req.CostPrice != nil || req.MarginPct != nil:
		sale, err := Derive(merged.CostPrice, merged.MarginPct)
		if err != nil {
			return domain.Product{}, err
		}
		merged.SalePrice = sale
	}
	return merged, nil
}
