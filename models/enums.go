package models

type MaterialCategory string

const (
	MaterialCategoryIngredient MaterialCategory = "ingredient"
	MaterialCategoryPackaging  MaterialCategory = "packaging"
	MaterialCategoryConsumable MaterialCategory = "consumable"
)

type MovementReason string

const (
	MovementReasonSale            MovementReason = "sale"
	MovementReasonPurchaseReceipt MovementReason = "purchase-receipt"
	MovementReasonAdjustment      MovementReason = "adjustment"
)

type RecipeLineRole string

const (
	RecipeLineRoleBase          RecipeLineRole = "base"
	RecipeLineRoleMandatorySlot RecipeLineRole = "mandatory_slot"
	RecipeLineRoleOptional      RecipeLineRole = "optional"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "Draft"
	PurchaseOrderStatusOrdered   PurchaseOrderStatus = "Ordered"
	PurchaseOrderStatusReceived  PurchaseOrderStatus = "Received"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "Cancelled"
)

type PurchaseOrderItemType string

const (
	PurchaseOrderItemTypeMaterial PurchaseOrderItemType = "material"
	PurchaseOrderItemTypeProduct  PurchaseOrderItemType = "product"
)

// CanTransitionPurchaseOrderStatus is the lifecycle table.
// Draft -> Ordered | Cancelled, Ordered -> Cancelled.
// Received and Cancelled are terminal; receiving itself goes through
// ReceivePurchaseOrder, not a plain status patch.
func CanTransitionPurchaseOrderStatus(from PurchaseOrderStatus, to PurchaseOrderStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case PurchaseOrderStatusDraft:
		return to == PurchaseOrderStatusOrdered || to == PurchaseOrderStatusCancelled
	case PurchaseOrderStatusOrdered:
		return to == PurchaseOrderStatusCancelled
	default:
		return false
	}
}
