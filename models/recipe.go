package models

import (
	"context"

	"bitbucket.org/kopidata/backoffice_backend/config"
	"bitbucket.org/kopidata/backoffice_backend/utils"
	"github.com/shopspring/decimal"
)

// RecipeLine is one bill-of-materials line. Role decides which of the
// tagged fields apply:
//   - base: MaterialId + QtyPerUnit
//   - mandatory_slot: SlotId + OptionId + (MaterialId or SubProductId)
//   - optional: GroupId + OptionId + (MaterialId or SubProductId)
type RecipeLine struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ProductId    int             `gorm:"index;not null" json:"product_id"`
	Role         RecipeLineRole  `gorm:"type:enum('base','mandatory_slot','optional');not null" json:"role"`
	SlotId       string          `gorm:"size:100;default:null" json:"slot_id"`
	GroupId      string          `gorm:"size:100;default:null" json:"group_id"`
	OptionId     string          `gorm:"size:100;default:null" json:"option_id"`
	MaterialId   *int            `gorm:"index;default:null" json:"material_id"`
	SubProductId *int            `gorm:"index;default:null" json:"sub_product_id"`
	QtyPerUnit   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_per_unit"`
	Position     int             `gorm:"default:0" json:"position"`
}

// BundleSelection arrives with each sold line item of a bundle product.
type BundleSelection struct {
	SelectedMandatory map[string]string `json:"selected_mandatory"`
	SelectedOptional  []string          `json:"selected_optional"`
}

type NewRecipeLine struct {
	Role         RecipeLineRole  `json:"role" binding:"required"`
	SlotId       string          `json:"slot_id"`
	GroupId      string          `json:"group_id"`
	OptionId     string          `json:"option_id"`
	MaterialId   *int            `json:"material_id"`
	SubProductId *int            `json:"sub_product_id"`
	QtyPerUnit   decimal.Decimal `json:"qty_per_unit" binding:"required"`
}

func (input NewRecipeLine) validate() error {
	if !input.QtyPerUnit.IsPositive() {
		return &ValidationError{Field: "qty_per_unit", Reason: "must be positive"}
	}
	hasMaterial := input.MaterialId != nil
	hasSubProduct := input.SubProductId != nil
	if hasMaterial == hasSubProduct {
		return &ValidationError{Field: "material_id", Reason: "exactly one of material_id or sub_product_id is required"}
	}
	switch input.Role {
	case RecipeLineRoleBase:
		if !hasMaterial {
			return &ValidationError{Field: "material_id", Reason: "base lines must reference a material"}
		}
	case RecipeLineRoleMandatorySlot:
		if input.SlotId == "" || input.OptionId == "" {
			return &ValidationError{Field: "slot_id", Reason: "mandatory_slot lines need slot_id and option_id"}
		}
	case RecipeLineRoleOptional:
		if input.GroupId == "" || input.OptionId == "" {
			return &ValidationError{Field: "group_id", Reason: "optional lines need group_id and option_id"}
		}
	default:
		return &ValidationError{Field: "role", Reason: "unknown role"}
	}
	return nil
}

func GetRecipeLines(ctx context.Context, productId int) ([]RecipeLine, error) {
	db := config.GetDB()
	var lines []RecipeLine
	err := db.WithContext(ctx).
		Where("product_id = ?", productId).
		Order("position ASC, id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ReplaceRecipeLines swaps out a product's whole recipe in one transaction.
func ReplaceRecipeLines(ctx context.Context, productId int, inputs []NewRecipeLine) ([]RecipeLine, error) {
	db := config.GetDB()

	if err := utils.ValidateResourceId[Product](ctx, productId); err != nil {
		return nil, &NotFoundError{Resource: "product", Id: productId}
	}

	var materialIds []int
	var subProductIds []int
	for _, input := range inputs {
		if err := input.validate(); err != nil {
			return nil, err
		}
		if input.MaterialId != nil {
			materialIds = append(materialIds, *input.MaterialId)
		}
		if input.SubProductId != nil {
			subProductIds = append(subProductIds, *input.SubProductId)
		}
	}
	if len(materialIds) > 0 {
		if err := utils.ValidateResourcesId[Material](ctx, materialIds); err != nil {
			return nil, &NotFoundError{Resource: "material", Id: materialIds}
		}
	}
	if len(subProductIds) > 0 {
		if err := utils.ValidateResourcesId[Product](ctx, subProductIds); err != nil {
			return nil, &NotFoundError{Resource: "product", Id: subProductIds}
		}
	}

	lines := make([]RecipeLine, 0, len(inputs))
	for i, input := range inputs {
		lines = append(lines, RecipeLine{
			ProductId:    productId,
			Role:         input.Role,
			SlotId:       input.SlotId,
			GroupId:      input.GroupId,
			OptionId:     input.OptionId,
			MaterialId:   input.MaterialId,
			SubProductId: input.SubProductId,
			QtyPerUnit:   input.QtyPerUnit,
			Position:     i,
		})
	}

	tx := db.WithContext(ctx).Begin()
	if err := tx.Where("product_id = ?", productId).Delete(&RecipeLine{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(lines) > 0 {
		if err := tx.Create(&lines).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return lines, nil
}
