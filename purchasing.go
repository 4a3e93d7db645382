package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/kopidata/backoffice_backend/models"
	"github.com/gin-gonic/gin"
)

func paramId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func listPurchaseOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		orders, total, err := models.PaginatePurchaseOrders(c.Request.Context(), limit, offset,
			c.Query("status"), c.Query("supplier"))
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"purchase_orders": orders, "total": total})
	}
}

func createPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func getPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		order, err := models.GetPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func patchPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		var patch models.PurchaseOrderPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := models.UpdatePurchaseOrderMetadata(c.Request.Context(), id, &patch)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func deletePurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		if err := models.DeletePurchaseOrder(c.Request.Context(), id); err != nil {
			respondModelError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func updatePurchaseOrderItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		var input struct {
			Items []models.NewPurchaseOrderItem `json:"items" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := models.UpdatePurchaseOrderItems(c.Request.Context(), id, input.Items)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func receivePurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		order, err := models.ReceivePurchaseOrder(c.Request.Context(), id)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func exportPurchaseOrderCSVHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		data, filename, err := models.ExportPurchaseOrderCSV(c.Request.Context(), id)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "text/csv", data)
	}
}

func exportPurchaseOrderXLSXHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		data, filename, err := models.ExportPurchaseOrderXLSX(c.Request.Context(), id)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
}

func listSuppliersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		suppliers, err := models.ListSuppliers(c.Request.Context())
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"suppliers": suppliers})
	}
}

func listPurchaseOrderTargetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		targets, err := models.ListPurchaseOrderTargets(c.Request.Context())
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"targets": targets})
	}
}
