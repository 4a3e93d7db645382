package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ResolvedMaterial is one flattened requirement after bundle resolution.
type ResolvedMaterial struct {
	MaterialId int
	Qty        decimal.Decimal
}

// ResolveRecipe flattens a product's recipe into material requirements for
// qtySold units, applying the bundle selection. Runs on the caller's tx so
// consumption sees the same snapshot it debits against.
func ResolveRecipe(tx *gorm.DB, productId int, qtySold decimal.Decimal, selection *BundleSelection) ([]ResolvedMaterial, error) {
	var lines []RecipeLine
	err := tx.Where("product_id = ?", productId).
		Order("position ASC, id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}

	// one level of sub-recipes: load base lines of every referenced sub-product
	var subProductIds []int
	for _, line := range lines {
		if line.SubProductId != nil {
			subProductIds = append(subProductIds, *line.SubProductId)
		}
	}
	subLines := map[int][]RecipeLine{}
	if len(subProductIds) > 0 {
		var all []RecipeLine
		err := tx.Where("product_id IN ?", subProductIds).
			Order("position ASC, id ASC").
			Find(&all).Error
		if err != nil {
			return nil, err
		}
		for _, line := range all {
			subLines[line.ProductId] = append(subLines[line.ProductId], line)
		}
	}

	return resolveLines(lines, subLines, qtySold, selection)
}

// resolveLines is the pure resolution core.
//
// Base lines always count. Each mandatory slot must have a selection or the
// sale cannot be costed. Optional lines count only when selected. Options
// resolve to a material or to the base lines of a sub-recipe, one level
// deep; a sub-recipe carrying its own mandatory slots is broken data.
// Requirements are merged per material.
func resolveLines(lines []RecipeLine, subLines map[int][]RecipeLine, qtySold decimal.Decimal, selection *BundleSelection) ([]ResolvedMaterial, error) {
	var order []int
	totals := map[int]decimal.Decimal{}

	add := func(materialId int, qty decimal.Decimal) {
		if _, seen := totals[materialId]; !seen {
			order = append(order, materialId)
		}
		totals[materialId] = totals[materialId].Add(qty)
	}

	// resolve one chosen or base line into material quantities
	resolveOption := func(line RecipeLine) error {
		scaled := line.QtyPerUnit.Mul(qtySold)
		if line.MaterialId != nil {
			add(*line.MaterialId, scaled)
			return nil
		}
		if line.SubProductId == nil {
			return &DataConsistencyError{Detail: fmt.Sprintf("recipe line %d has neither material nor sub-product", line.ID)}
		}
		sub, ok := subLines[*line.SubProductId]
		if !ok {
			return &DataConsistencyError{Detail: fmt.Sprintf("sub-product %d has no recipe lines loaded", *line.SubProductId)}
		}
		for _, subLine := range sub {
			switch subLine.Role {
			case RecipeLineRoleBase:
				if subLine.MaterialId == nil {
					return &DataConsistencyError{Detail: fmt.Sprintf("recipe line %d has no material", subLine.ID)}
				}
				add(*subLine.MaterialId, subLine.QtyPerUnit.Mul(scaled))
			case RecipeLineRoleMandatorySlot:
				return &DataConsistencyError{Detail: fmt.Sprintf("sub-product %d nests a mandatory slot", *line.SubProductId)}
			case RecipeLineRoleOptional:
				// optional lines of a sub-recipe are not selectable from here
			}
		}
		return nil
	}

	selectedMandatory := map[string]string{}
	selectedOptional := map[string]bool{}
	if selection != nil {
		selectedMandatory = selection.SelectedMandatory
		for _, optionId := range selection.SelectedOptional {
			selectedOptional[optionId] = true
		}
	}

	// mandatory slots are grouped; exactly one option per slot must match
	slotSeen := map[string]bool{}
	slotMatched := map[string]bool{}

	for _, line := range lines {
		switch line.Role {
		case RecipeLineRoleBase:
			if line.MaterialId == nil {
				return nil, &DataConsistencyError{Detail: fmt.Sprintf("recipe line %d has no material", line.ID)}
			}
			add(*line.MaterialId, line.QtyPerUnit.Mul(qtySold))

		case RecipeLineRoleMandatorySlot:
			slotSeen[line.SlotId] = true
			chosen, ok := selectedMandatory[line.SlotId]
			if !ok {
				return nil, &MissingSelectionError{SlotId: line.SlotId}
			}
			if line.OptionId != chosen {
				continue
			}
			slotMatched[line.SlotId] = true
			if err := resolveOption(line); err != nil {
				return nil, err
			}

		case RecipeLineRoleOptional:
			if !selectedOptional[line.OptionId] {
				continue
			}
			if err := resolveOption(line); err != nil {
				return nil, err
			}

		default:
			return nil, &DataConsistencyError{Detail: fmt.Sprintf("recipe line %d has unknown role %q", line.ID, line.Role)}
		}
	}

	// a selection naming an option no slot line carries cannot be costed
	for slotId := range slotSeen {
		if !slotMatched[slotId] {
			return nil, &ValidationError{Field: "selected_mandatory", Reason: fmt.Sprintf("unknown option %q for slot %q", selectedMandatory[slotId], slotId)}
		}
	}

	resolved := make([]ResolvedMaterial, 0, len(order))
	for _, materialId := range order {
		resolved = append(resolved, ResolvedMaterial{MaterialId: materialId, Qty: totals[materialId]})
	}
	return resolved, nil
}
