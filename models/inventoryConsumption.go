package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/kopidata/backoffice_backend/config"
	"bitbucket.org/kopidata/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryConsumption is one append-only cost ledger row: a material
// debit attributed to a sold line item, costed at the unit cost in force
// when the sale was recorded.
type InventoryConsumption struct {
	ID           int             `gorm:"primary_key" json:"id"`
	OrderId      string          `gorm:"size:100;uniqueIndex:idx_order_item_material,priority:1;not null" json:"order_id"`
	OrderItemId  string          `gorm:"size:100;uniqueIndex:idx_order_item_material,priority:2;not null" json:"order_item_id"`
	MaterialId   int             `gorm:"uniqueIndex:idx_order_item_material,priority:3;not null" json:"material_id"`
	MaterialName string          `gorm:"size:255;not null" json:"material_name"`
	ProductName  string          `gorm:"size:255;default:null" json:"product_name"`
	QtyConsumed  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_consumed"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"unit_cost"`
	TotalCost    decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"total_cost"`
	ConsumedAt   time.Time       `gorm:"autoCreateTime;index" json:"consumed_at"`
}

type RecordSaleInput struct {
	OrderId     string           `json:"order_id" binding:"required"`
	OrderItemId string           `json:"order_item_id" binding:"required"`
	ProductId   int              `json:"product_id" binding:"required"`
	ProductName string           `json:"product_name"`
	Qty         decimal.Decimal  `json:"qty" binding:"required"`
	Selection   *BundleSelection `json:"bundle_selection"`
}

func (input RecordSaleInput) validate() error {
	if !input.Qty.IsPositive() {
		return &ValidationError{Field: "qty", Reason: "must be positive"}
	}
	return nil
}

// buildConsumptionRows turns resolved requirements plus locked materials
// into ledger rows, snapshotting each material's current unit cost.
func buildConsumptionRows(input RecordSaleInput, resolved []ResolvedMaterial, materials map[int]*Material) ([]InventoryConsumption, error) {
	rows := make([]InventoryConsumption, 0, len(resolved))
	for _, req := range resolved {
		material, ok := materials[req.MaterialId]
		if !ok {
			return nil, &DataConsistencyError{Detail: fmt.Sprintf("recipe references missing material %d", req.MaterialId)}
		}
		rows = append(rows, InventoryConsumption{
			OrderId:      input.OrderId,
			OrderItemId:  input.OrderItemId,
			MaterialId:   req.MaterialId,
			MaterialName: material.Name,
			ProductName:  input.ProductName,
			QtyConsumed:  req.Qty,
			UnitCost:     material.CostPerUnit,
			TotalCost:    req.Qty.Mul(material.CostPerUnit),
		})
	}
	return rows, nil
}

// RecordSale records the material consumption for one sold line item.
//
// The whole operation is one transaction: if rows for this
// (orderId, orderItemId) already exist they are returned unchanged, so a
// retried or re-pushed order event never double-debits. Resolution runs
// before any mutation; a failed resolution leaves stock and ledger alone.
// A product without recipe lines yields zero rows and zero debits.
func RecordSale(ctx context.Context, input RecordSaleInput) ([]InventoryConsumption, error) {
	db := config.GetDB()

	if err := input.validate(); err != nil {
		return nil, err
	}
	// Only a confirmed missing row is a permanent rejection; any other db
	// failure must surface as-is so the order source retries.
	if err := db.WithContext(ctx).First(&Product{}, input.ProductId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "product", Id: input.ProductId}
		}
		return nil, err
	}

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	// idempotency: existing rows for this line item win, locked so a
	// concurrent retry serializes here
	var existing []InventoryConsumption
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND order_item_id = ?", input.OrderId, input.OrderItemId).
		Find(&existing).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(existing) > 0 {
		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
		return existing, nil
	}

	resolved, err := ResolveRecipe(tx, input.ProductId, input.Qty, input.Selection)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(resolved) == 0 {
		// untracked product, nothing to consume
		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
		return []InventoryConsumption{}, nil
	}

	materialIds := make([]int, 0, len(resolved))
	for _, req := range resolved {
		materialIds = append(materialIds, req.MaterialId)
	}
	var locked []*Material
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", materialIds).
		Find(&locked).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	materials := make(map[int]*Material, len(locked))
	for _, material := range locked {
		materials[material.ID] = material
	}

	rows, err := buildConsumptionRows(input, resolved, materials)
	if err != nil {
		tx.Rollback()
		logger := config.GetLogger()
		config.LogError(logger, "models", "RecordSale", "Recipe data inconsistency", input, err)
		return nil, err
	}

	for _, req := range resolved {
		reference := fmt.Sprintf("order %s item %s", input.OrderId, input.OrderItemId)
		if _, err := AdjustMaterialStock(tx, req.MaterialId, req.Qty.Neg(), MovementReasonSale, reference); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Create(&rows).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetConsumptionsByOrder lists ledger rows for an order, newest first.
func GetConsumptionsByOrder(ctx context.Context, orderId string, limit int, offset int) ([]*InventoryConsumption, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	var rows []*InventoryConsumption
	err := db.WithContext(ctx).
		Where("order_id = ?", orderId).
		Order("consumed_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteConsumptionsForOrderItem is the administrative correction path: it
// removes a line item's ledger rows and credits the debited stock back, in
// one transaction.
func DeleteConsumptionsForOrderItem(ctx context.Context, orderId string, orderItemId string) (int, error) {
	db := config.GetDB()

	release, err := utils.ObtainLock(ctx, "stockLock", orderId+":"+orderItemId, "inventoryConsumption.go", "DeleteConsumptionsForOrderItem")
	if err != nil {
		return 0, err
	}
	defer release()

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	var rows []InventoryConsumption
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND order_item_id = ?", orderId, orderItemId).
		Find(&rows).Error
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if len(rows) == 0 {
		tx.Rollback()
		return 0, &NotFoundError{Resource: "consumption", Id: orderId + "/" + orderItemId}
	}

	for _, row := range rows {
		reference := fmt.Sprintf("correction order %s item %s", orderId, orderItemId)
		if _, err := AdjustMaterialStock(tx, row.MaterialId, row.QtyConsumed, MovementReasonAdjustment, reference); err != nil {
			tx.Rollback()
			return 0, err
		}
	}

	if err := tx.Where("order_id = ? AND order_item_id = ?", orderId, orderItemId).
		Delete(&InventoryConsumption{}).Error; err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := tx.Commit().Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}
