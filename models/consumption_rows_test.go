package models

import (
	"errors"
	"testing"
)

func TestBuildConsumptionRowsSnapshotsCost(t *testing.T) {
	input := RecordSaleInput{
		OrderId:     "ord-1",
		OrderItemId: "item-1",
		ProductName: "Latte",
		Qty:         dec("2"),
	}
	resolved := []ResolvedMaterial{
		{MaterialId: 10, Qty: dec("0.04")},
		{MaterialId: 20, Qty: dec("0.4")},
	}
	materials := map[int]*Material{
		10: {ID: 10, Name: "Arabica Beans", CostPerUnit: dec("55")},
		20: {ID: 20, Name: "Oat Milk", CostPerUnit: dec("8.5")},
	}

	rows, err := buildConsumptionRows(input, resolved, materials)
	if err != nil {
		t.Fatalf("buildConsumptionRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	beans := rows[0]
	if beans.MaterialName != "Arabica Beans" || beans.ProductName != "Latte" {
		t.Fatalf("unexpected names: %+v", beans)
	}
	if beans.UnitCost.Cmp(dec("55")) != 0 {
		t.Fatalf("expected unit cost snapshot 55, got %s", beans.UnitCost.String())
	}
	if beans.TotalCost.Cmp(dec("2.2")) != 0 {
		t.Fatalf("expected total cost 2.2, got %s", beans.TotalCost.String())
	}

	milk := rows[1]
	if milk.TotalCost.Cmp(dec("3.4")) != 0 {
		t.Fatalf("expected total cost 3.4, got %s", milk.TotalCost.String())
	}
}

func TestBuildConsumptionRowsMissingMaterial(t *testing.T) {
	input := RecordSaleInput{OrderId: "ord-1", OrderItemId: "item-1", Qty: dec("1")}
	resolved := []ResolvedMaterial{{MaterialId: 99, Qty: dec("1")}}

	_, err := buildConsumptionRows(input, resolved, map[int]*Material{})
	var consistency *DataConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("expected DataConsistencyError, got %v", err)
	}
}
