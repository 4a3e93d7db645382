package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/kopidata/backoffice_backend/models"
	"github.com/gin-gonic/gin"
)

func listMaterialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		materials, err := models.ListMaterialsCached(c.Request.Context())
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"materials": materials})
	}
}

func getMaterialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		material, err := models.GetMaterialCached(c.Request.Context(), id)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, material)
	}
}

func upsertMaterialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Id int `json:"id"`
			models.NewMaterial
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		material, err := models.UpsertMaterial(c.Request.Context(), input.Id, &input.NewMaterial)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, material)
	}
}

func listMaterialMovementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		movements, err := models.GetMaterialMovements(c.Request.Context(), id, limit, offset)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"movements": movements})
	}
}

func listProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := models.ListProductsCached(c.Request.Context())
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"products": products})
	}
}

func getProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		product, err := models.GetProductCached(c.Request.Context(), id)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func upsertProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Id int `json:"id"`
			models.NewProduct
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product, err := models.UpsertProduct(c.Request.Context(), input.Id, &input.NewProduct)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func getRecipeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		lines, err := models.GetRecipeLines(c.Request.Context(), id)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"recipe_lines": lines})
	}
}

func replaceRecipeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		var input struct {
			Lines []models.NewRecipeLine `json:"lines" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		lines, err := models.ReplaceRecipeLines(c.Request.Context(), id, input.Lines)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"recipe_lines": lines})
	}
}

func listStockChecksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		logs, total, err := models.PaginateStockChecks(c.Request.Context(), limit, offset)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"stock_checks": logs, "total": total})
	}
}

func recordStockCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStockCheck
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log, err := models.RecordStockCheck(c.Request.Context(), &input)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, log)
	}
}

func getStockCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		log, err := models.GetStockCheck(c.Request.Context(), id)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, log)
	}
}

func deleteStockCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c)
		if !ok {
			return
		}
		if err := models.DeleteStockCheck(c.Request.Context(), id); err != nil {
			respondModelError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
