package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/kopidata/backoffice_backend/config"
	"bitbucket.org/kopidata/backoffice_backend/models"
	"bitbucket.org/kopidata/backoffice_backend/utils"
	"github.com/shopspring/decimal"
)

func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "backoffice_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}
	if err := config.ClearRedis(ctx); err != nil {
		t.Fatalf("ClearRedis: %v", err)
	}

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	return ctx
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func createBeansMaterial(t *testing.T, ctx context.Context, stock string) *models.Material {
	t.Helper()
	initial := mustDec(stock)
	material, err := models.UpsertMaterial(ctx, 0, &models.NewMaterial{
		Name:         fmt.Sprintf("Arabica Beans %d", time.Now().UnixNano()),
		Category:     models.MaterialCategoryIngredient,
		PurchaseUnit: "kg",
		PurchaseQty:  mustDec("1"),
		PurchaseCost: mustDec("55"),
		StockQty:     &initial,
	})
	if err != nil {
		t.Fatalf("UpsertMaterial: %v", err)
	}
	return material
}

func createLatteProduct(t *testing.T, ctx context.Context, materialId int, qtyPerUnit string) *models.Product {
	t.Helper()
	product, err := models.UpsertProduct(ctx, 0, &models.NewProduct{
		Name:      fmt.Sprintf("Latte %d", time.Now().UnixNano()),
		Sku:       fmt.Sprintf("LATTE-%d", time.Now().UnixNano()),
		BasePrice: mustDec("12"),
	})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	_, err = models.ReplaceRecipeLines(ctx, product.ID, []models.NewRecipeLine{
		{Role: models.RecipeLineRoleBase, MaterialId: &materialId, QtyPerUnit: mustDec(qtyPerUnit)},
	})
	if err != nil {
		t.Fatalf("ReplaceRecipeLines: %v", err)
	}
	return product
}

func TestRecordSaleConservationAndIdempotency(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	material := createBeansMaterial(t, ctx, "10")
	product := createLatteProduct(t, ctx, material.ID, "0.02")

	input := models.RecordSaleInput{
		OrderId:     "ord-100",
		OrderItemId: "item-1",
		ProductId:   product.ID,
		ProductName: product.Name,
		Qty:         mustDec("3"),
	}

	rows, err := models.RecordSale(ctx, input)
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 consumption row, got %d", len(rows))
	}
	// 0.02 * 3 units at 55/kg
	if rows[0].QtyConsumed.Cmp(mustDec("0.06")) != 0 {
		t.Fatalf("expected qty 0.06, got %s", rows[0].QtyConsumed.String())
	}
	if rows[0].TotalCost.Cmp(mustDec("3.3")) != 0 {
		t.Fatalf("expected total cost 3.3, got %s", rows[0].TotalCost.String())
	}

	after, err := models.GetMaterial(ctx, material.ID)
	if err != nil {
		t.Fatalf("GetMaterial: %v", err)
	}
	if after.StockQty.Cmp(mustDec("9.94")) != 0 {
		t.Fatalf("expected stock 9.94, got %s", after.StockQty.String())
	}

	// an unknown product is a permanent rejection, not a transient failure
	_, err = models.RecordSale(ctx, models.RecordSaleInput{
		OrderId:     "ord-100",
		OrderItemId: "item-2",
		ProductId:   999999,
		Qty:         mustDec("1"),
	})
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError for unknown product, got %v", err)
	}

	// retry must return the same rows without double-debiting
	again, err := models.RecordSale(ctx, input)
	if err != nil {
		t.Fatalf("RecordSale retry: %v", err)
	}
	if len(again) != 1 || again[0].ID != rows[0].ID {
		t.Fatalf("expected identical rows on retry, got %+v", again)
	}
	after2, _ := models.GetMaterial(ctx, material.ID)
	if after2.StockQty.Cmp(mustDec("9.94")) != 0 {
		t.Fatalf("stock changed on retry: %s", after2.StockQty.String())
	}
}

func TestRecordSaleCostSnapshotDoesNotDrift(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	material := createBeansMaterial(t, ctx, "10")
	product := createLatteProduct(t, ctx, material.ID, "0.02")

	rows, err := models.RecordSale(ctx, models.RecordSaleInput{
		OrderId:     "ord-200",
		OrderItemId: "item-1",
		ProductId:   product.ID,
		ProductName: product.Name,
		Qty:         mustDec("1"),
	})
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	snapshot := rows[0].UnitCost

	// purchase terms change after the sale
	_, err = models.UpsertMaterial(ctx, material.ID, &models.NewMaterial{
		Name:         material.Name,
		Category:     material.Category,
		PurchaseUnit: "kg",
		PurchaseQty:  mustDec("1"),
		PurchaseCost: mustDec("80"),
	})
	if err != nil {
		t.Fatalf("UpsertMaterial: %v", err)
	}

	stored, err := models.GetConsumptionsByOrder(ctx, "ord-200", 10, 0)
	if err != nil {
		t.Fatalf("GetConsumptionsByOrder: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 row, got %d", len(stored))
	}
	if stored[0].UnitCost.Cmp(snapshot) != 0 {
		t.Fatalf("unit cost drifted: was %s, now %s", snapshot.String(), stored[0].UnitCost.String())
	}
}

func TestRecordSaleAllowsNegativeStock(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	material := createBeansMaterial(t, ctx, "0")
	product := createLatteProduct(t, ctx, material.ID, "1")

	rows, err := models.RecordSale(ctx, models.RecordSaleInput{
		OrderId:     "ord-300",
		OrderItemId: "item-1",
		ProductId:   product.ID,
		ProductName: product.Name,
		Qty:         mustDec("2"),
	})
	if err != nil {
		t.Fatalf("RecordSale at zero stock: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	after, _ := models.GetMaterial(ctx, material.ID)
	if after.StockQty.Cmp(mustDec("-2")) != 0 {
		t.Fatalf("expected stock -2, got %s", after.StockQty.String())
	}
}

func TestRecordSaleMissingSelectionLeavesStockUntouched(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	beans := createBeansMaterial(t, ctx, "10")
	oat := createBeansMaterial(t, ctx, "5")

	product, err := models.UpsertProduct(ctx, 0, &models.NewProduct{
		Name: fmt.Sprintf("Combo %d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	_, err = models.ReplaceRecipeLines(ctx, product.ID, []models.NewRecipeLine{
		{Role: models.RecipeLineRoleBase, MaterialId: &beans.ID, QtyPerUnit: mustDec("0.02")},
		{Role: models.RecipeLineRoleMandatorySlot, SlotId: "milk", OptionId: "oat", MaterialId: &oat.ID, QtyPerUnit: mustDec("0.2")},
	})
	if err != nil {
		t.Fatalf("ReplaceRecipeLines: %v", err)
	}

	_, err = models.RecordSale(ctx, models.RecordSaleInput{
		OrderId:     "ord-400",
		OrderItemId: "item-1",
		ProductId:   product.ID,
		Qty:         mustDec("1"),
	})
	var missing *models.MissingSelectionError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSelectionError, got %v", err)
	}

	afterBeans, _ := models.GetMaterial(ctx, beans.ID)
	if afterBeans.StockQty.Cmp(mustDec("10")) != 0 {
		t.Fatalf("base material was debited despite aborted resolution: %s", afterBeans.StockQty.String())
	}
	rows, err := models.GetConsumptionsByOrder(ctx, "ord-400", 10, 0)
	if err != nil {
		t.Fatalf("GetConsumptionsByOrder: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no ledger rows, got %d", len(rows))
	}
}

func TestPurchaseOrderLifecycleReceiveOnce(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	material := createBeansMaterial(t, ctx, "1")

	po, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		Supplier: "Bean Bros",
		Items: []models.NewPurchaseOrderItem{
			{ItemType: models.PurchaseOrderItemTypeMaterial, RefId: material.ID, Qty: mustDec("10"), Unit: "kg", UnitCost: mustDec("5")},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if po.CurrentStatus != models.PurchaseOrderStatusDraft {
		t.Fatalf("expected Draft, got %s", po.CurrentStatus)
	}
	if po.TotalAmount.Cmp(mustDec("50")) != 0 {
		t.Fatalf("expected total 50, got %s", po.TotalAmount.String())
	}
	if !strings.HasPrefix(po.PoNumber, "PO-") {
		t.Fatalf("unexpected po number %q", po.PoNumber)
	}

	ordered := models.PurchaseOrderStatusOrdered
	if _, err := models.UpdatePurchaseOrderMetadata(ctx, po.ID, &models.PurchaseOrderPatch{CurrentStatus: &ordered}); err != nil {
		t.Fatalf("transition to Ordered: %v", err)
	}

	// items are frozen outside draft
	_, err = models.UpdatePurchaseOrderItems(ctx, po.ID, []models.NewPurchaseOrderItem{
		{ItemType: models.PurchaseOrderItemTypeMaterial, RefId: material.ID, Qty: mustDec("1"), UnitCost: mustDec("1")},
	})
	var invalidState *models.InvalidStateError
	if !errors.As(err, &invalidState) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	stored, _ := models.GetPurchaseOrder(ctx, po.ID)
	if len(stored.Items) != 1 || stored.Items[0].Qty.Cmp(mustDec("10")) != 0 {
		t.Fatalf("item list changed on rejected update: %+v", stored.Items)
	}

	received, err := models.ReceivePurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("ReceivePurchaseOrder: %v", err)
	}
	if received.CurrentStatus != models.PurchaseOrderStatusReceived || received.ReceivedDate == nil {
		t.Fatalf("unexpected received order: %+v", received)
	}

	after, _ := models.GetMaterial(ctx, material.ID)
	if after.StockQty.Cmp(mustDec("11")) != 0 {
		t.Fatalf("expected stock 11 after receipt, got %s", after.StockQty.String())
	}

	// second receive must reject, not double-credit
	_, err = models.ReceivePurchaseOrder(ctx, po.ID)
	if !errors.As(err, &invalidState) {
		t.Fatalf("expected InvalidStateError on second receive, got %v", err)
	}
	after2, _ := models.GetMaterial(ctx, material.ID)
	if after2.StockQty.Cmp(mustDec("11")) != 0 {
		t.Fatalf("stock double-credited: %s", after2.StockQty.String())
	}

	// received orders are terminal: no metadata edits, no cancellation
	supplier := "Someone Else"
	if _, err := models.UpdatePurchaseOrderMetadata(ctx, po.ID, &models.PurchaseOrderPatch{Supplier: &supplier}); !errors.As(err, &invalidState) {
		t.Fatalf("expected InvalidStateError on metadata patch after receive, got %v", err)
	}
	cancelled := models.PurchaseOrderStatusCancelled
	if _, err := models.UpdatePurchaseOrderMetadata(ctx, po.ID, &models.PurchaseOrderPatch{CurrentStatus: &cancelled}); !errors.As(err, &invalidState) {
		t.Fatalf("expected InvalidStateError on cancel after receive, got %v", err)
	}
	unchanged, _ := models.GetPurchaseOrder(ctx, po.ID)
	if unchanged.CurrentStatus != models.PurchaseOrderStatusReceived || unchanged.Supplier != "Bean Bros" {
		t.Fatalf("received order mutated by rejected patches: %+v", unchanged)
	}

	// received orders cannot be deleted
	if err := models.DeletePurchaseOrder(ctx, po.ID); !errors.As(err, &invalidState) {
		t.Fatalf("expected InvalidStateError on delete, got %v", err)
	}
	if _, err := models.GetPurchaseOrder(ctx, po.ID); err != nil {
		t.Fatalf("received order disappeared after rejected delete: %v", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("backoffice-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("backoffice-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=backoffice_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
