package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Default rounding, overridable through config.
const (
	DefaultCostPrecision  int32 = 4
	DefaultValuePrecision int32 = 2
)

// CostingEngine computes moving-average cost and inventory valuation.
type CostingEngine interface {
	// AverageCost returns the current average unit cost for (company, warehouse, item, lot?).
	// A nil lot averages across every lot of the item.
	AverageCost(ctx context.Context, companyID, warehouseID, itemID int, lotID *int) (decimal.Decimal, error)
	AverageCostTx(ctx context.Context, tx Tx, companyID, warehouseID, itemID int, lotID *int) (decimal.Decimal, error)
	// TotalValue sums on-hand value over a company, optionally one warehouse. Balances only.
	TotalValue(ctx context.Context, companyID int, warehouseID *int) (decimal.Decimal, error)
	// RoundCost and RoundValue apply the configured precisions.
	RoundCost(d decimal.Decimal) decimal.Decimal
	RoundValue(d decimal.Decimal) decimal.Decimal
}

type costingEngine struct {
	store          Store
	costPrecision  int32
	valuePrecision int32
}

// NewCostingEngine constructs a CostingEngine. Non-positive precisions fall back to the defaults.
func NewCostingEngine(store Store, costPrecision, valuePrecision int32) CostingEngine {
	if costPrecision <= 0 {
		costPrecision = DefaultCostPrecision
	}
	if valuePrecision <= 0 {
		valuePrecision = DefaultValuePrecision
	}
	return &costingEngine{store: store, costPrecision: costPrecision, valuePrecision: valuePrecision}
}

func (c *costingEngine) RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.costPrecision)
}

func (c *costingEngine) RoundValue(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.valuePrecision)
}

func (c *costingEngine) AverageCost(ctx context.Context, companyID, warehouseID, itemID int, lotID *int) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := c.store.InTx(ctx, func(tx Tx) error {
		v, err := c.AverageCostTx(ctx, tx, companyID, warehouseID, itemID, lotID)
		cost = v
		return err
	})
	return cost, err
}

func (c *costingEngine) AverageCostTx(ctx context.Context, tx Tx, companyID, warehouseID, itemID int, lotID *int) (decimal.Decimal, error) {
	q := StockQuery{
		CompanyID:   companyID,
		WarehouseID: &warehouseID,
		ItemID:      &itemID,
		LotID:       lotID,
	}

	cached, err := tx.BalanceTotals(ctx, q)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read stock balance for item %d: %w", itemID, err)
	}
	if cached.Rows > 0 && cached.Qty.IsPositive() {
		return c.RoundCost(cached.Value.Div(cached.Qty)), nil
	}

	// Cache miss or empty balance: rebuild from the ledger history of the key.
	hist, err := tx.LedgerTotals(ctx, q)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger for item %d: %w", itemID, err)
	}
	if !hist.Qty.IsPositive() {
		return decimal.Zero, nil
	}
	return c.RoundCost(hist.Value.Div(hist.Qty)), nil
}

func (c *costingEngine) TotalValue(ctx context.Context, companyID int, warehouseID *int) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := c.store.InTx(ctx, func(tx Tx) error {
		t, err := tx.BalanceTotals(ctx, StockQuery{CompanyID: companyID, WarehouseID: warehouseID})
		if err != nil {
			return fmt.Errorf("failed to sum stock value for company %d: %w", companyID, err)
		}
		total = t.Value
		return nil
	})
	return total, err
}
