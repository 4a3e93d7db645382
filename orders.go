package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/kopidata/backoffice_backend/config"
	"bitbucket.org/kopidata/backoffice_backend/models"
	"bitbucket.org/kopidata/backoffice_backend/utils"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OrderEvent is the push payload from the order source: one order with
// its sold line items.
type OrderEvent struct {
	OrderId string           `json:"order_id"`
	Items   []OrderEventItem `json:"items"`
}

type OrderEventItem struct {
	OrderItemId string                  `json:"order_item_id"`
	ProductId   int                     `json:"product_id"`
	ProductName string                  `json:"product_name"`
	Qty         decimal.Decimal         `json:"qty"`
	Selection   *models.BundleSelection `json:"bundle_selection"`
}

type orderEventItemResult struct {
	OrderItemId string `json:"order_item_id"`
	Accepted    bool   `json:"accepted"`
	Rows        int    `json:"rows"`
	Error       string `json:"error,omitempty"`
}

func orderEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		redisLock := config.GetRedisLock()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "orders.go", "orderEventsHandler", "io.ReadAll", nil, err)
			// Malformed request body: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		var event OrderEvent
		if err := json.Unmarshal(body, &event); err != nil {
			config.LogError(logger, "orders.go", "orderEventsHandler", "Unmarshal body", string(body), err)
			// Malformed request: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		// Basic validation to avoid retry loops on poisoned events.
		if event.OrderId == "" || len(event.Items) == 0 {
			config.LogError(logger, "orders.go", "orderEventsHandler", "Invalid order event (missing required fields)", event, fmt.Errorf("order_id/items required"))
			c.Status(http.StatusNoContent)
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "orderEvents.process")
		defer span.End()

		// Best-effort: serialize per order so a double push processes the
		// items in sequence. Correctness does not depend on the lock; the
		// ledger's idempotency key is the real guard.
		var lock *redislock.Lock
		if redisLock == nil {
			logger.WithFields(logrus.Fields{
				"field":    "orderEventsHandler",
				"order_id": event.OrderId,
			}).Warn("redis lock not ready; proceeding without redis lock")
		} else {
			lock, err = redisLock.Obtain(ctx, fmt.Sprintf("lock:order:%s", event.OrderId), 30*time.Second, nil)
			if err == redislock.ErrNotObtained {
				logger.WithFields(logrus.Fields{
					"field":    "orderEventsHandler",
					"order_id": event.OrderId,
				}).Warn("could not obtain redis lock; proceeding without redis lock")
				lock = nil
			} else if err != nil {
				logger.WithFields(logrus.Fields{
					"field":    "orderEventsHandler",
					"order_id": event.OrderId,
				}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(ctx); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field":    "orderEventsHandler",
					"order_id": event.OrderId,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		ctx = utils.SetUsernameInContext(ctx, "System")

		results := make([]orderEventItemResult, 0, len(event.Items))
		var internalFailure bool
		for _, item := range event.Items {
			rows, err := models.RecordSale(ctx, models.RecordSaleInput{
				OrderId:     event.OrderId,
				OrderItemId: item.OrderItemId,
				ProductId:   item.ProductId,
				ProductName: item.ProductName,
				Qty:         item.Qty,
				Selection:   item.Selection,
			})
			if err != nil {
				results = append(results, orderEventItemResult{
					OrderItemId: item.OrderItemId,
					Accepted:    false,
					Error:       err.Error(),
				})
				if !isRejectableSaleError(err) {
					internalFailure = true
				}
				config.LogError(logger, "orders.go", "orderEventsHandler", "RecordSale", item, err)
				continue
			}
			results = append(results, orderEventItemResult{
				OrderItemId: item.OrderItemId,
				Accepted:    true,
				Rows:        len(rows),
			})
		}

		if internalFailure {
			// Non-2xx tells the order source to retry; accepted items are
			// safe to replay thanks to the idempotency key.
			c.JSON(http.StatusInternalServerError, gin.H{
				"order_id": event.OrderId,
				"results":  results,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order_id": event.OrderId,
			"results":  results,
		})
	}
}

// isRejectableSaleError reports whether the failure is a permanent
// property of the event rather than a transient store problem. Permanent
// rejections are acked so the source does not retry them forever.
func isRejectableSaleError(err error) bool {
	var validationErr *models.ValidationError
	var notFoundErr *models.NotFoundError
	var missingSelectionErr *models.MissingSelectionError
	var consistencyErr *models.DataConsistencyError
	return errors.As(err, &validationErr) ||
		errors.As(err, &notFoundErr) ||
		errors.As(err, &missingSelectionErr) ||
		errors.As(err, &consistencyErr)
}

func listConsumptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		rows, err := models.GetConsumptionsByOrder(c.Request.Context(), c.Param("orderId"), limit, offset)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"consumptions": rows})
	}
}

func deleteConsumptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := models.DeleteConsumptionsForOrderItem(c.Request.Context(), c.Param("orderId"), c.Param("orderItemId"))
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	}
}
