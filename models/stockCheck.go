package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/kopidata/backoffice_backend/config"
	"bitbucket.org/kopidata/backoffice_backend/utils"
	"github.com/shopspring/decimal"
)

// StockCheckLog records one manual physical count. It never mutates stock;
// reconciliation is a separate manual follow-up.
type StockCheckLog struct {
	ID          int              `gorm:"primary_key" json:"id"`
	PerformedAt time.Time        `gorm:"not null;index" json:"performed_at"`
	PerformedBy string           `gorm:"size:255;default:null" json:"performed_by"`
	Notes       string           `gorm:"type:text;default:null" json:"notes"`
	Items       []StockCheckItem `json:"items"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

type StockCheckItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	StockCheckLogId int             `gorm:"index;not null" json:"stock_check_log_id"`
	MaterialId      int             `gorm:"index;not null" json:"material_id"`
	MaterialName    string          `gorm:"size:255;not null" json:"material_name"`
	ExpectedQty     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"expected_qty"`
	ActualQty       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"actual_qty"`
	Discrepancy     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"discrepancy"`
}

type NewStockCheckItem struct {
	MaterialId  int              `json:"material_id" binding:"required"`
	ExpectedQty *decimal.Decimal `json:"expected_qty"`
	ActualQty   decimal.Decimal  `json:"actual_qty"`
}

type NewStockCheck struct {
	PerformedAt *time.Time          `json:"performed_at"`
	Notes       string              `json:"notes"`
	Items       []NewStockCheckItem `json:"items" binding:"required"`
}

// RecordStockCheck stores a count. Expected quantity defaults to the
// ledger's current value at record time; discrepancy = actual - expected.
func RecordStockCheck(ctx context.Context, input *NewStockCheck) (*StockCheckLog, error) {
	db := config.GetDB()

	if len(input.Items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "at least one item is required"}
	}

	performedAt := time.Now()
	if input.PerformedAt != nil {
		performedAt = *input.PerformedAt
	}

	log := StockCheckLog{
		PerformedAt: performedAt,
		Notes:       input.Notes,
	}
	if username, ok := utils.GetUsernameFromContext(ctx); ok {
		log.PerformedBy = username
	}

	for i, item := range input.Items {
		material, err := GetMaterial(ctx, item.MaterialId)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].material_id", i), Reason: err.Error()}
		}
		expected := material.StockQty
		if item.ExpectedQty != nil {
			expected = *item.ExpectedQty
		}
		log.Items = append(log.Items, StockCheckItem{
			MaterialId:   item.MaterialId,
			MaterialName: material.Name,
			ExpectedQty:  expected,
			ActualQty:    item.ActualQty,
			Discrepancy:  item.ActualQty.Sub(expected),
		})
	}

	if err := db.WithContext(ctx).Create(&log).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func PaginateStockChecks(ctx context.Context, limit int, offset int) ([]*StockCheckLog, int64, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := db.WithContext(ctx).Model(&StockCheckLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []*StockCheckLog
	err := db.WithContext(ctx).
		Order("performed_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func GetStockCheck(ctx context.Context, id int) (*StockCheckLog, error) {
	log, err := utils.FetchModel[StockCheckLog](ctx, id, "Items")
	if err != nil {
		return nil, &NotFoundError{Resource: "stock check", Id: id}
	}
	return log, nil
}

func DeleteStockCheck(ctx context.Context, id int) error {
	db := config.GetDB()

	if err := utils.ValidateResourceId[StockCheckLog](ctx, id); err != nil {
		return &NotFoundError{Resource: "stock check", Id: id}
	}

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := tx.Where("stock_check_log_id = ?", id).Delete(&StockCheckItem{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&StockCheckLog{}, id).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}
