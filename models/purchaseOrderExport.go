package models

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var purchaseOrderExportHeader = []string{
	"PO Number", "Supplier", "Status", "Order Date", "Expected Delivery",
	"Item Type", "Item Name", "SKU", "Quantity", "Unit",
	"Unit Cost (RM)", "Total Cost (RM)", "Notes",
}

func formatExportDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// purchaseOrderExportRows lays out the shared sheet: header, one row per
// item, a totals row, then the order notes line by line.
func purchaseOrderExportRows(po *PurchaseOrder) [][]string {
	rows := [][]string{purchaseOrderExportHeader}

	orderDate := po.OrderDate
	for _, item := range po.Items {
		rows = append(rows, []string{
			po.PoNumber,
			po.Supplier,
			string(po.CurrentStatus),
			formatExportDate(&orderDate),
			formatExportDate(po.ExpectedDeliveryDate),
			string(item.ItemType),
			item.Name,
			item.Sku,
			item.Qty.String(),
			item.Unit,
			item.UnitCost.StringFixed(2),
			item.TotalCost.StringFixed(2),
			item.Notes,
		})
	}

	rows = append(rows, []string{
		"", "", "", "", "", "", "Total", "", "", "", "",
		"RM " + po.TotalAmount.StringFixed(2), "",
	})

	if po.Notes != "" {
		for _, line := range strings.Split(po.Notes, "\n") {
			rows = append(rows, []string{"Notes", line})
		}
	}

	return rows
}

// ExportPurchaseOrderCSV renders the order as CSV. encoding/csv handles
// the quote escaping for commas, quotes and newlines inside fields.
func ExportPurchaseOrderCSV(ctx context.Context, id int) ([]byte, string, error) {
	po, err := GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	for _, row := range purchaseOrderExportRows(po) {
		if err := writer.Write(row); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("%s.csv", po.PoNumber)
	return buf.Bytes(), filename, nil
}

// ExportPurchaseOrderXLSX renders the same sheet as a spreadsheet.
func ExportPurchaseOrderXLSX(ctx context.Context, id int) ([]byte, string, error) {
	po, err := GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range purchaseOrderExportRows(po) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, "", err
		}
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return nil, "", err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("%s.xlsx", po.PoNumber)
	return buf.Bytes(), filename, nil
}
