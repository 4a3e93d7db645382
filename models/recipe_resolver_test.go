package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func intPtr(v int) *int { return &v }

func requireResolved(t *testing.T, got []ResolvedMaterial, want map[int]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d resolved materials, got %d: %+v", len(want), len(got), got)
	}
	for _, r := range got {
		wantQty, ok := want[r.MaterialId]
		if !ok {
			t.Fatalf("unexpected material %d in result", r.MaterialId)
		}
		if r.Qty.Cmp(dec(wantQty)) != 0 {
			t.Fatalf("material %d: expected qty %s, got %s", r.MaterialId, wantQty, r.Qty.String())
		}
	}
}

func TestResolveLinesBaseScalesAndMerges(t *testing.T) {
	lines := []RecipeLine{
		{ID: 1, Role: RecipeLineRoleBase, MaterialId: intPtr(10), QtyPerUnit: dec("0.02")},
		{ID: 2, Role: RecipeLineRoleBase, MaterialId: intPtr(11), QtyPerUnit: dec("1")},
		{ID: 3, Role: RecipeLineRoleBase, MaterialId: intPtr(10), QtyPerUnit: dec("0.01")},
	}

	resolved, err := resolveLines(lines, nil, dec("3"), nil)
	if err != nil {
		t.Fatalf("resolveLines: %v", err)
	}
	requireResolved(t, resolved, map[int]string{
		10: "0.09", // (0.02 + 0.01) * 3
		11: "3",
	})
}

func TestResolveLinesEmptyRecipeIsValid(t *testing.T) {
	resolved, err := resolveLines(nil, nil, dec("5"), nil)
	if err != nil {
		t.Fatalf("resolveLines: %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("expected empty result, got %+v", resolved)
	}
}

func TestResolveLinesMissingMandatorySelection(t *testing.T) {
	lines := []RecipeLine{
		{ID: 1, Role: RecipeLineRoleMandatorySlot, SlotId: "milk", OptionId: "oat", MaterialId: intPtr(20), QtyPerUnit: dec("0.2")},
		{ID: 2, Role: RecipeLineRoleMandatorySlot, SlotId: "milk", OptionId: "whole", MaterialId: intPtr(21), QtyPerUnit: dec("0.2")},
	}

	_, err := resolveLines(lines, nil, dec("1"), &BundleSelection{})
	var missing *MissingSelectionError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSelectionError, got %v", err)
	}
	if missing.SlotId != "milk" {
		t.Fatalf("expected slot milk, got %q", missing.SlotId)
	}
}

func TestResolveLinesMandatorySlotPicksChosenOption(t *testing.T) {
	lines := []RecipeLine{
		{ID: 1, Role: RecipeLineRoleBase, MaterialId: intPtr(10), QtyPerUnit: dec("0.02")},
		{ID: 2, Role: RecipeLineRoleMandatorySlot, SlotId: "milk", OptionId: "oat", MaterialId: intPtr(20), QtyPerUnit: dec("0.2")},
		{ID: 3, Role: RecipeLineRoleMandatorySlot, SlotId: "milk", OptionId: "whole", MaterialId: intPtr(21), QtyPerUnit: dec("0.25")},
	}
	selection := &BundleSelection{SelectedMandatory: map[string]string{"milk": "oat"}}

	resolved, err := resolveLines(lines, nil, dec("2"), selection)
	if err != nil {
		t.Fatalf("resolveLines: %v", err)
	}
	requireResolved(t, resolved, map[int]string{
		10: "0.04",
		20: "0.4",
	})
}

func TestResolveLinesUnknownChosenOption(t *testing.T) {
	lines := []RecipeLine{
		{ID: 1, Role: RecipeLineRoleMandatorySlot, SlotId: "milk", OptionId: "oat", MaterialId: intPtr(20), QtyPerUnit: dec("0.2")},
	}
	selection := &BundleSelection{SelectedMandatory: map[string]string{"milk": "soy"}}

	_, err := resolveLines(lines, nil, dec("1"), selection)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestResolveLinesOptionalOnlyWhenSelected(t *testing.T) {
	lines := []RecipeLine{
		{ID: 1, Role: RecipeLineRoleBase, MaterialId: intPtr(10), QtyPerUnit: dec("1")},
		{ID: 2, Role: RecipeLineRoleOptional, GroupId: "toppings", OptionId: "whip", MaterialId: intPtr(30), QtyPerUnit: dec("0.05")},
		{ID: 3, Role: RecipeLineRoleOptional, GroupId: "toppings", OptionId: "syrup", MaterialId: intPtr(31), QtyPerUnit: dec("0.03")},
	}
	selection := &BundleSelection{SelectedOptional: []string{"whip"}}

	resolved, err := resolveLines(lines, nil, dec("2"), selection)
	if err != nil {
		t.Fatalf("resolveLines: %v", err)
	}
	requireResolved(t, resolved, map[int]string{
		10: "2",
		30: "0.1",
	})
}

func TestResolveLinesSubRecipeOneLevel(t *testing.T) {
	lines := []RecipeLine{
		{ID: 1, Role: RecipeLineRoleMandatorySlot, SlotId: "side", OptionId: "croissant", SubProductId: intPtr(7), QtyPerUnit: dec("1")},
	}
	subLines := map[int][]RecipeLine{
		7: {
			{ID: 10, ProductId: 7, Role: RecipeLineRoleBase, MaterialId: intPtr(40), QtyPerUnit: dec("0.1")},
			{ID: 11, ProductId: 7, Role: RecipeLineRoleBase, MaterialId: intPtr(41), QtyPerUnit: dec("0.05")},
		},
	}
	selection := &BundleSelection{SelectedMandatory: map[string]string{"side": "croissant"}}

	resolved, err := resolveLines(lines, subLines, dec("3"), selection)
	if err != nil {
		t.Fatalf("resolveLines: %v", err)
	}
	requireResolved(t, resolved, map[int]string{
		40: "0.3",
		41: "0.15",
	})
}

func TestResolveLinesNestedMandatorySlotIsBrokenData(t *testing.T) {
	lines := []RecipeLine{
		{ID: 1, Role: RecipeLineRoleMandatorySlot, SlotId: "side", OptionId: "combo", SubProductId: intPtr(7), QtyPerUnit: dec("1")},
	}
	subLines := map[int][]RecipeLine{
		7: {
			{ID: 10, ProductId: 7, Role: RecipeLineRoleMandatorySlot, SlotId: "inner", OptionId: "x", MaterialId: intPtr(40), QtyPerUnit: dec("1")},
		},
	}
	selection := &BundleSelection{SelectedMandatory: map[string]string{"side": "combo"}}

	_, err := resolveLines(lines, subLines, dec("1"), selection)
	var consistency *DataConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("expected DataConsistencyError, got %v", err)
	}
}

func TestResolveLinesBaseWithoutMaterialIsBrokenData(t *testing.T) {
	lines := []RecipeLine{
		{ID: 1, Role: RecipeLineRoleBase, QtyPerUnit: dec("1")},
	}

	_, err := resolveLines(lines, nil, dec("1"), nil)
	var consistency *DataConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("expected DataConsistencyError, got %v", err)
	}
}
