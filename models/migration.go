package models

import (
	"bitbucket.org/kopidata/backoffice_backend/config"
)

func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Material{},
		&MaterialMovement{},
		&Product{},
		&RecipeLine{},
		&InventoryConsumption{},
		&PurchaseOrder{},
		&PurchaseOrderItem{},
		&StockCheckLog{},
		&StockCheckItem{},
		&User{},
	)
}
