package models

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func exportTestOrder() *PurchaseOrder {
	orderDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return &PurchaseOrder{
		ID:            1,
		PoNumber:      "PO-42",
		Supplier:      "Bean Bros, Sdn Bhd",
		CurrentStatus: PurchaseOrderStatusOrdered,
		OrderDate:     orderDate,
		TotalAmount:   dec("86.00"),
		Notes:         "deliver to back door",
		Items: []PurchaseOrderItem{
			{ItemType: PurchaseOrderItemTypeMaterial, Name: "Arabica Beans", Qty: dec("10"), Unit: "kg", UnitCost: dec("5"), TotalCost: dec("50")},
			{ItemType: PurchaseOrderItemTypeMaterial, Name: "Cup Lids", Qty: dec("3"), Unit: "box", UnitCost: dec("12"), TotalCost: dec("36")},
		},
	}
}

func TestPurchaseOrderExportRowsTotals(t *testing.T) {
	rows := purchaseOrderExportRows(exportTestOrder())

	if got := strings.Join(rows[0], ","); !strings.HasPrefix(got, "PO Number,Supplier,Status") {
		t.Fatalf("unexpected header: %q", got)
	}
	// header + 2 items + totals + 1 notes row
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}

	totals := rows[3]
	if totals[11] != "RM 86.00" {
		t.Fatalf("expected totals row to show RM 86.00, got %q", totals[11])
	}
	if totals[6] != "Total" {
		t.Fatalf("expected Total label, got %q", totals[6])
	}

	first := rows[1]
	if first[8] != "10" || first[9] != "kg" || first[10] != "5.00" || first[11] != "50.00" {
		t.Fatalf("unexpected first item row: %+v", first)
	}

	notes := rows[4]
	if notes[0] != "Notes" || notes[1] != "deliver to back door" {
		t.Fatalf("unexpected notes row: %+v", notes)
	}
}

func TestPurchaseOrderExportCSVQuoting(t *testing.T) {
	po := exportTestOrder()
	po.Items[0].Name = `Beans "Premium", dark`

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	for _, row := range purchaseOrderExportRows(po) {
		if err := writer.Write(row); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	writer.Flush()

	out := buf.String()
	if !strings.Contains(out, `"Beans ""Premium"", dark"`) {
		t.Fatalf("expected quote-escaped item name in output:\n%s", out)
	}
	if !strings.Contains(out, `"Bean Bros, Sdn Bhd"`) {
		t.Fatalf("expected quote-escaped supplier in output:\n%s", out)
	}
	if !strings.Contains(out, "RM 86.00") {
		t.Fatalf("expected totals in output:\n%s", out)
	}

	// round-trip stays parseable
	reader := csv.NewReader(strings.NewReader(out))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	if records[1][6] != `Beans "Premium", dark` {
		t.Fatalf("item name did not round-trip: %q", records[1][6])
	}
}
