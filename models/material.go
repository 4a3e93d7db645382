package models

import (
	"context"
	"time"

	"bitbucket.org/kopidata/backoffice_backend/config"
	"bitbucket.org/kopidata/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Material struct {
	ID                int              `gorm:"primary_key" json:"id"`
	Name              string           `gorm:"size:255;not null" json:"name" binding:"required"`
	Category          MaterialCategory `gorm:"type:enum('ingredient','packaging','consumable');not null" json:"category" binding:"required"`
	PurchaseUnit      string           `gorm:"size:50;not null" json:"purchase_unit"`
	PurchaseQty       decimal.Decimal  `gorm:"type:decimal(20,4);default:1" json:"purchase_qty"`
	PurchaseCost      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"purchase_cost"`
	CostPerUnit       decimal.Decimal  `gorm:"type:decimal(20,6);default:0" json:"cost_per_unit"`
	StockQty          decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"stock_qty"`
	LowStockThreshold decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"low_stock_threshold"`
	Supplier          string           `gorm:"size:255;default:null" json:"supplier"`
	IsActive          *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// MaterialMovement is the audit row behind every stock adjustment, written
// in the same transaction as the adjustment itself.
type MaterialMovement struct {
	ID          int             `gorm:"primary_key" json:"id"`
	MaterialId  int             `gorm:"index;not null" json:"material_id"`
	Reason      MovementReason  `gorm:"type:enum('sale','purchase-receipt','adjustment');not null" json:"reason"`
	Qty         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	PreviousQty decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"previous_qty"`
	NewQty      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"new_qty"`
	Reference   string          `gorm:"size:255;default:null" json:"reference"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewMaterial struct {
	Name              string           `json:"name" binding:"required"`
	Category          MaterialCategory `json:"category" binding:"required"`
	PurchaseUnit      string           `json:"purchase_unit" binding:"required"`
	PurchaseQty       decimal.Decimal  `json:"purchase_qty" binding:"required"`
	PurchaseCost      decimal.Decimal  `json:"purchase_cost" binding:"required"`
	StockQty          *decimal.Decimal `json:"stock_qty"`
	LowStockThreshold decimal.Decimal  `json:"low_stock_threshold"`
	Supplier          string           `json:"supplier"`
	IsActive          *bool            `json:"is_active"`
}

func (input NewMaterial) validate() error {
	if !input.PurchaseQty.IsPositive() {
		return &ValidationError{Field: "purchase_qty", Reason: "must be positive"}
	}
	if input.PurchaseCost.IsNegative() {
		return &ValidationError{Field: "purchase_cost", Reason: "must not be negative"}
	}
	switch input.Category {
	case MaterialCategoryIngredient, MaterialCategoryPackaging, MaterialCategoryConsumable:
	default:
		return &ValidationError{Field: "category", Reason: "unknown category"}
	}
	return nil
}

func GetMaterial(ctx context.Context, id int) (*Material, error) {
	material, err := utils.FetchModel[Material](ctx, id)
	if err != nil {
		return nil, &NotFoundError{Resource: "material", Id: id}
	}
	return material, nil
}

func GetMaterials(ctx context.Context) ([]*Material, error) {
	return utils.FetchAllModels[Material](ctx)
}

// UpsertMaterial creates or updates a material. Cost per base unit is
// recomputed whenever purchase terms change; a zero id means create.
func UpsertMaterial(ctx context.Context, id int, input *NewMaterial) (*Material, error) {
	db := config.GetDB()

	if err := input.validate(); err != nil {
		return nil, err
	}

	costPerUnit := input.PurchaseCost.Div(input.PurchaseQty)

	if id == 0 {
		material := Material{
			Name:              input.Name,
			Category:          input.Category,
			PurchaseUnit:      input.PurchaseUnit,
			PurchaseQty:       input.PurchaseQty,
			PurchaseCost:      input.PurchaseCost,
			CostPerUnit:       costPerUnit,
			LowStockThreshold: input.LowStockThreshold,
			Supplier:          input.Supplier,
			IsActive:          input.IsActive,
		}
		if input.StockQty != nil {
			material.StockQty = *input.StockQty
		}
		if err := db.WithContext(ctx).Create(&material).Error; err != nil {
			return nil, err
		}
		return &material, nil
	}

	material, err := GetMaterial(ctx, id)
	if err != nil {
		return nil, err
	}

	material.Name = input.Name
	material.Category = input.Category
	material.PurchaseUnit = input.PurchaseUnit
	material.PurchaseQty = input.PurchaseQty
	material.PurchaseCost = input.PurchaseCost
	material.CostPerUnit = costPerUnit
	material.LowStockThreshold = input.LowStockThreshold
	material.Supplier = input.Supplier
	if input.IsActive != nil {
		material.IsActive = input.IsActive
	}

	// StockQty is deliberately not patched here; stock moves only through
	// AdjustMaterialStock.
	if err := db.WithContext(ctx).Omit("StockQty").Save(material).Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Material](id); err != nil {
		config.LogError(config.GetLogger(), "models", "UpsertMaterial", "Invalidating material cache", id, err)
	}
	if err := utils.RemoveRedisList[Material](); err != nil {
		config.LogError(config.GetLogger(), "models", "UpsertMaterial", "Invalidating material list cache", id, err)
	}

	return material, nil
}

// AdjustMaterialStock applies delta to a material's stock inside the
// caller's transaction and writes the movement row. Negative results are
// kept as-is; a shortfall is a signal, not an error. Returns the
// post-adjustment quantity.
func AdjustMaterialStock(tx *gorm.DB, materialId int, delta decimal.Decimal, reason MovementReason, reference string) (decimal.Decimal, error) {
	var material Material
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&material, materialId).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, &NotFoundError{Resource: "material", Id: materialId}
		}
		return decimal.Zero, err
	}

	previousQty := material.StockQty
	newQty := previousQty.Add(delta)

	if err := tx.Model(&material).Update("stock_qty", newQty).Error; err != nil {
		return decimal.Zero, err
	}

	movement := MaterialMovement{
		MaterialId:  materialId,
		Reason:      reason,
		Qty:         delta,
		PreviousQty: previousQty,
		NewQty:      newQty,
		Reference:   reference,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return decimal.Zero, err
	}

	if newQty.LessThan(material.LowStockThreshold) {
		config.LogWarn(config.GetLogger(), "models", "AdjustMaterialStock", "Material below low-stock threshold",
			map[string]interface{}{
				"material_id": materialId,
				"name":        material.Name,
				"stock_qty":   newQty.String(),
				"threshold":   material.LowStockThreshold.String(),
			}, "low stock")
	}

	return newQty, nil
}

func GetMaterialMovements(ctx context.Context, materialId int, limit int, offset int) ([]*MaterialMovement, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	var movements []*MaterialMovement
	err := db.WithContext(ctx).
		Where("material_id = ?", materialId).
		Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
