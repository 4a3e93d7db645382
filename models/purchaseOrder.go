package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/kopidata/backoffice_backend/config"
	"bitbucket.org/kopidata/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

type PurchaseOrder struct {
	ID                   int                 `gorm:"primary_key" json:"id"`
	PoNumber             string              `gorm:"size:100;uniqueIndex;not null" json:"po_number"`
	SequenceNo           int64               `gorm:"not null" json:"sequence_no"`
	Supplier             string              `gorm:"size:255;not null" json:"supplier"`
	CurrentStatus        PurchaseOrderStatus `gorm:"type:enum('Draft','Ordered','Received','Cancelled');not null" json:"current_status"`
	OrderDate            time.Time           `gorm:"not null" json:"order_date"`
	ExpectedDeliveryDate *time.Time          `gorm:"default:null" json:"expected_delivery_date"`
	ReceivedDate         *time.Time          `gorm:"default:null" json:"received_date"`
	TotalAmount          decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Notes                string              `gorm:"type:text;default:null" json:"notes"`
	Items                []PurchaseOrderItem `json:"items"`
	CreatedAt            time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderItem struct {
	ID              int                   `gorm:"primary_key" json:"id"`
	PurchaseOrderId int                   `gorm:"index;not null" json:"purchase_order_id"`
	ItemType        PurchaseOrderItemType `gorm:"type:enum('material','product');not null" json:"item_type"`
	RefId           int                   `gorm:"index;not null" json:"ref_id"`
	Name            string                `gorm:"size:255;not null" json:"name"`
	Sku             string                `gorm:"size:100;default:null" json:"sku"`
	Qty             decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"qty"`
	Unit            string                `gorm:"size:50;default:null" json:"unit"`
	UnitCost        decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	TotalCost       decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	Notes           string                `gorm:"size:255;default:null" json:"notes"`
}

type NewPurchaseOrder struct {
	Supplier             string                  `json:"supplier" binding:"required"`
	OrderDate            *time.Time              `json:"order_date"`
	ExpectedDeliveryDate *time.Time              `json:"expected_delivery_date"`
	Notes                string                  `json:"notes"`
	Items                []NewPurchaseOrderItem `json:"items"`
}

type NewPurchaseOrderItem struct {
	ItemType PurchaseOrderItemType `json:"item_type" binding:"required"`
	RefId    int                   `json:"ref_id" binding:"required"`
	Qty      decimal.Decimal       `json:"qty" binding:"required"`
	Unit     string                `json:"unit"`
	UnitCost decimal.Decimal       `json:"unit_cost"`
	Notes    string                `json:"notes"`
}

// PurchaseOrderPatch carries metadata updates; nil fields are untouched.
type PurchaseOrderPatch struct {
	Supplier             *string              `json:"supplier"`
	OrderDate            *time.Time           `json:"order_date"`
	ExpectedDeliveryDate *time.Time           `json:"expected_delivery_date"`
	Notes                *string              `json:"notes"`
	CurrentStatus        *PurchaseOrderStatus `json:"current_status"`
}

// builds item rows with totals, resolving the referenced material/product
// for name, sku and unit defaults
func buildPurchaseOrderItems(ctx context.Context, inputs []NewPurchaseOrderItem) ([]PurchaseOrderItem, decimal.Decimal, error) {
	items := make([]PurchaseOrderItem, 0, len(inputs))
	var totalAmount decimal.Decimal

	for i, input := range inputs {
		if !input.Qty.IsPositive() {
			return nil, decimal.Zero, &ValidationError{Field: fmt.Sprintf("items[%d].qty", i), Reason: "must be positive"}
		}
		if input.UnitCost.IsNegative() {
			return nil, decimal.Zero, &ValidationError{Field: fmt.Sprintf("items[%d].unit_cost", i), Reason: "must not be negative"}
		}

		item := PurchaseOrderItem{
			ItemType: input.ItemType,
			RefId:    input.RefId,
			Qty:      input.Qty,
			Unit:     input.Unit,
			UnitCost: input.UnitCost,
			Notes:    input.Notes,
		}

		switch input.ItemType {
		case PurchaseOrderItemTypeMaterial:
			material, err := GetMaterial(ctx, input.RefId)
			if err != nil {
				return nil, decimal.Zero, err
			}
			item.Name = material.Name
			if item.Unit == "" {
				item.Unit = material.PurchaseUnit
			}
		case PurchaseOrderItemTypeProduct:
			product, err := GetProduct(ctx, input.RefId)
			if err != nil {
				return nil, decimal.Zero, err
			}
			item.Name = product.Name
			item.Sku = product.Sku
		default:
			return nil, decimal.Zero, &ValidationError{Field: fmt.Sprintf("items[%d].item_type", i), Reason: "unknown item type"}
		}

		item.TotalCost = item.Qty.Mul(item.UnitCost)
		totalAmount = totalAmount.Add(item.TotalCost)
		items = append(items, item)
	}

	return items, totalAmount, nil
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	items, totalAmount, err := buildPurchaseOrderItems(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	orderDate := time.Now()
	if input.OrderDate != nil {
		orderDate = *input.OrderDate
	}

	purchaseOrder := PurchaseOrder{
		Supplier:             input.Supplier,
		CurrentStatus:        PurchaseOrderStatusDraft,
		OrderDate:            orderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		Notes:                input.Notes,
		TotalAmount:          totalAmount,
		Items:                items,
	}

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	seqNo, err := utils.GetSequence[PurchaseOrder](ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	purchaseOrder.SequenceNo = seqNo
	purchaseOrder.PoNumber = fmt.Sprintf("PO-%d", seqNo)

	if err := tx.Create(&purchaseOrder).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	purchaseOrder, err := utils.FetchModel[PurchaseOrder](ctx, id, "Items")
	if err != nil {
		return nil, &NotFoundError{Resource: "purchase order", Id: id}
	}
	return purchaseOrder, nil
}

// UpdatePurchaseOrderItems replaces the item list. Draft only; the draft
// check runs on a locked row so a concurrent receive cannot slip between
// the check and the write.
func UpdatePurchaseOrderItems(ctx context.Context, id int, inputs []NewPurchaseOrderItem) (*PurchaseOrder, error) {
	db := config.GetDB()

	items, totalAmount, err := buildPurchaseOrderItems(ctx, inputs)
	if err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	var purchaseOrder PurchaseOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&purchaseOrder, id).Error; err != nil {
		tx.Rollback()
		return nil, &NotFoundError{Resource: "purchase order", Id: id}
	}
	if purchaseOrder.CurrentStatus != PurchaseOrderStatusDraft {
		tx.Rollback()
		return nil, &InvalidStateError{Operation: "update items", State: string(purchaseOrder.CurrentStatus)}
	}

	if err := tx.Where("purchase_order_id = ?", id).Delete(&PurchaseOrderItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range items {
		items[i].PurchaseOrderId = id
	}
	if len(items) > 0 {
		if err := tx.Create(&items).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Model(&PurchaseOrder{}).Where("id = ?", id).
		Update("total_amount", totalAmount).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return GetPurchaseOrder(ctx, id)
}

// UpdatePurchaseOrderMetadata patches supplier/dates/notes (draft only) and
// validates status changes against the lifecycle table. Both checks run on
// a locked row inside the write transaction.
func UpdatePurchaseOrderMetadata(ctx context.Context, id int, patch *PurchaseOrderPatch) (*PurchaseOrder, error) {
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	var purchaseOrder PurchaseOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&purchaseOrder, id).Error; err != nil {
		tx.Rollback()
		return nil, &NotFoundError{Resource: "purchase order", Id: id}
	}

	updates := map[string]interface{}{}

	if patch.CurrentStatus != nil && *patch.CurrentStatus != purchaseOrder.CurrentStatus {
		if *patch.CurrentStatus == PurchaseOrderStatusReceived {
			tx.Rollback()
			return nil, &ValidationError{Field: "current_status", Reason: "receiving goes through the receive operation"}
		}
		if !CanTransitionPurchaseOrderStatus(purchaseOrder.CurrentStatus, *patch.CurrentStatus) {
			tx.Rollback()
			return nil, &InvalidStateError{
				Operation: fmt.Sprintf("transition to %s", *patch.CurrentStatus),
				State:     string(purchaseOrder.CurrentStatus),
			}
		}
		updates["current_status"] = *patch.CurrentStatus
	}

	nonStatusPatched := patch.Supplier != nil || patch.OrderDate != nil ||
		patch.ExpectedDeliveryDate != nil || patch.Notes != nil
	if nonStatusPatched {
		if purchaseOrder.CurrentStatus != PurchaseOrderStatusDraft {
			tx.Rollback()
			return nil, &InvalidStateError{Operation: "update metadata", State: string(purchaseOrder.CurrentStatus)}
		}
		if patch.Supplier != nil {
			updates["supplier"] = *patch.Supplier
		}
		if patch.OrderDate != nil {
			updates["order_date"] = *patch.OrderDate
		}
		if patch.ExpectedDeliveryDate != nil {
			updates["expected_delivery_date"] = *patch.ExpectedDeliveryDate
		}
		if patch.Notes != nil {
			updates["notes"] = *patch.Notes
		}
	}

	if len(updates) > 0 {
		if err := tx.Model(&PurchaseOrder{}).Where("id = ?", id).
			Updates(updates).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetPurchaseOrder(ctx, id)
}

// DeletePurchaseOrder removes a draft order and its items. The draft check
// runs on a locked row so a concurrently received order cannot be deleted.
func DeletePurchaseOrder(ctx context.Context, id int) error {
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	var purchaseOrder PurchaseOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&purchaseOrder, id).Error; err != nil {
		tx.Rollback()
		return &NotFoundError{Resource: "purchase order", Id: id}
	}
	if purchaseOrder.CurrentStatus != PurchaseOrderStatusDraft {
		tx.Rollback()
		return &InvalidStateError{Operation: "delete", State: string(purchaseOrder.CurrentStatus)}
	}

	if err := tx.Where("purchase_order_id = ?", id).Delete(&PurchaseOrderItem{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&PurchaseOrder{}, id).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// ReceivePurchaseOrder credits every item's quantity to stock and stamps
// the order received, exactly once. The guarded UPDATE is the one-shot
// gate: whichever transaction flips the status does the crediting, any
// concurrent or repeated call sees zero affected rows and rejects.
func ReceivePurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	release, err := utils.ObtainLock(ctx, "stockLock", fmt.Sprintf("po:%d", id), "purchaseOrder.go", "ReceivePurchaseOrder")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	var purchaseOrder PurchaseOrder
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").First(&purchaseOrder, id).Error
	if err != nil {
		tx.Rollback()
		return nil, &NotFoundError{Resource: "purchase order", Id: id}
	}

	now := time.Now()
	result := tx.Model(&PurchaseOrder{}).
		Where("id = ? AND current_status IN ?", id,
			[]PurchaseOrderStatus{PurchaseOrderStatusDraft, PurchaseOrderStatusOrdered}).
		Updates(map[string]interface{}{
			"current_status": PurchaseOrderStatusReceived,
			"received_date":  now,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, &InvalidStateError{Operation: "receive", State: string(purchaseOrder.CurrentStatus)}
	}

	for _, item := range purchaseOrder.Items {
		switch item.ItemType {
		case PurchaseOrderItemTypeMaterial:
			if _, err := AdjustMaterialStock(tx, item.RefId, item.Qty, MovementReasonPurchaseReceipt, purchaseOrder.PoNumber); err != nil {
				tx.Rollback()
				return nil, err
			}
		case PurchaseOrderItemTypeProduct:
			if _, err := AdjustProductStock(tx, item.RefId, item.Qty); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	purchaseOrder.CurrentStatus = PurchaseOrderStatusReceived
	purchaseOrder.ReceivedDate = &now
	return &purchaseOrder, nil
}

func PaginatePurchaseOrders(ctx context.Context, limit int, offset int, status string, supplier string) ([]*PurchaseOrder, int64, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := db.WithContext(ctx).Model(&PurchaseOrder{})
	if status != "" {
		query = query.Where("current_status = ?", status)
	}
	if supplier != "" {
		query = query.Where("supplier = ?", supplier)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []*PurchaseOrder
	err := query.Preload("Items").
		Order("order_date DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func ListSuppliers(ctx context.Context) ([]string, error) {
	db := config.GetDB()
	var suppliers []string
	err := db.WithContext(ctx).Model(&PurchaseOrder{}).
		Distinct("supplier").
		Where("supplier <> ''").
		Order("supplier ASC").
		Pluck("supplier", &suppliers).Error
	if err != nil {
		return nil, err
	}
	return suppliers, nil
}

// PurchaseOrderTarget is one pickable line target for the PO editor.
type PurchaseOrderTarget struct {
	ItemType PurchaseOrderItemType `json:"item_type"`
	RefId    int                   `json:"ref_id"`
	Name     string                `json:"name"`
	Sku      string                `json:"sku"`
	Unit     string                `json:"unit"`
}

// ListPurchaseOrderTargets returns every material plus every stock-managed
// product, the set a purchase order line may reference.
func ListPurchaseOrderTargets(ctx context.Context) ([]PurchaseOrderTarget, error) {
	materials, err := GetMaterials(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var products []*Product
	if err := db.WithContext(ctx).Where("manage_stock = ?", true).Find(&products).Error; err != nil {
		return nil, err
	}

	targets := make([]PurchaseOrderTarget, 0, len(materials)+len(products))
	for _, material := range materials {
		targets = append(targets, PurchaseOrderTarget{
			ItemType: PurchaseOrderItemTypeMaterial,
			RefId:    material.ID,
			Name:     material.Name,
			Unit:     material.PurchaseUnit,
		})
	}
	for _, product := range products {
		targets = append(targets, PurchaseOrderTarget{
			ItemType: PurchaseOrderItemTypeProduct,
			RefId:    product.ID,
			Name:     product.Name,
			Sku:      product.Sku,
		})
	}
	return targets, nil
}
