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

type Product struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	CatalogRef         string           `gorm:"size:100;index;default:null" json:"catalog_ref"`
	Name               string           `gorm:"size:255;not null" json:"name" binding:"required"`
	Sku                string           `gorm:"size:100;index;default:null" json:"sku"`
	Category           string           `gorm:"size:100;default:null" json:"category"`
	BasePrice          decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"base_price"`
	SupplierCost       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"supplier_cost"`
	UnitCost           decimal.Decimal  `gorm:"type:decimal(20,6);default:0" json:"unit_cost"`
	ComboPriceOverride *decimal.Decimal `gorm:"type:decimal(20,4);default:null" json:"combo_price_override"`
	QtyPerCarton       *int             `gorm:"default:null" json:"qty_per_carton"`
	StockQty           decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"stock_qty"`
	ManageStock        *bool            `gorm:"not null;default:false" json:"manage_stock"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	CatalogRef         string           `json:"catalog_ref"`
	Name               string           `json:"name" binding:"required"`
	Sku                string           `json:"sku"`
	Category           string           `json:"category"`
	BasePrice          decimal.Decimal  `json:"base_price"`
	SupplierCost       decimal.Decimal  `json:"supplier_cost"`
	ComboPriceOverride *decimal.Decimal `json:"combo_price_override"`
	QtyPerCarton       *int             `json:"qty_per_carton"`
	StockQty           *decimal.Decimal `json:"stock_qty"`
	ManageStock        *bool            `json:"manage_stock"`
}

// EffectivePrice: a set combo override supersedes the computed price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.ComboPriceOverride != nil {
		return *p.ComboPriceOverride
	}
	return p.BasePrice
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, &NotFoundError{Resource: "product", Id: id}
	}
	return product, nil
}

func GetProducts(ctx context.Context) ([]*Product, error) {
	return utils.FetchAllModels[Product](ctx)
}

func UpsertProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	db := config.GetDB()

	if input.BasePrice.IsNegative() {
		return nil, &ValidationError{Field: "base_price", Reason: "must not be negative"}
	}

	if id == 0 {
		product := Product{
			CatalogRef:         input.CatalogRef,
			Name:               input.Name,
			Sku:                input.Sku,
			Category:           input.Category,
			BasePrice:          input.BasePrice,
			SupplierCost:       input.SupplierCost,
			ComboPriceOverride: input.ComboPriceOverride,
			QtyPerCarton:       input.QtyPerCarton,
			ManageStock:        input.ManageStock,
		}
		if input.StockQty != nil {
			product.StockQty = *input.StockQty
		}
		if err := db.WithContext(ctx).Create(&product).Error; err != nil {
			return nil, err
		}
		return &product, nil
	}

	product, err := GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	product.CatalogRef = input.CatalogRef
	product.Name = input.Name
	product.Sku = input.Sku
	product.Category = input.Category
	product.BasePrice = input.BasePrice
	product.SupplierCost = input.SupplierCost
	product.ComboPriceOverride = input.ComboPriceOverride
	product.QtyPerCarton = input.QtyPerCarton
	if input.ManageStock != nil {
		product.ManageStock = input.ManageStock
	}

	if err := db.WithContext(ctx).Omit("StockQty").Save(product).Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Product](id); err != nil {
		config.LogError(config.GetLogger(), "models", "UpsertProduct", "Invalidating product cache", id, err)
	}
	if err := utils.RemoveRedisList[Product](); err != nil {
		config.LogError(config.GetLogger(), "models", "UpsertProduct", "Invalidating product list cache", id, err)
	}

	return product, nil
}

// AdjustProductStock credits or debits a stock-managed product's on-hand
// quantity inside the caller's transaction (finished-goods restock path).
func AdjustProductStock(tx *gorm.DB, productId int, delta decimal.Decimal) (decimal.Decimal, error) {
	var product Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productId).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, &NotFoundError{Resource: "product", Id: productId}
		}
		return decimal.Zero, err
	}

	newQty := product.StockQty.Add(delta)
	if err := tx.Model(&product).Update("stock_qty", newQty).Error; err != nil {
		return decimal.Zero, err
	}
	return newQty, nil
}
