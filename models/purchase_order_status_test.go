package models

import "testing"

func TestPurchaseOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    PurchaseOrderStatus
		to      PurchaseOrderStatus
		allowed bool
	}{
		{PurchaseOrderStatusDraft, PurchaseOrderStatusOrdered, true},
		{PurchaseOrderStatusDraft, PurchaseOrderStatusCancelled, true},
		{PurchaseOrderStatusDraft, PurchaseOrderStatusDraft, true},
		{PurchaseOrderStatusOrdered, PurchaseOrderStatusCancelled, true},
		{PurchaseOrderStatusOrdered, PurchaseOrderStatusDraft, false},
		{PurchaseOrderStatusReceived, PurchaseOrderStatusOrdered, false},
		{PurchaseOrderStatusReceived, PurchaseOrderStatusCancelled, false},
		{PurchaseOrderStatusCancelled, PurchaseOrderStatusDraft, false},
		{PurchaseOrderStatusCancelled, PurchaseOrderStatusOrdered, false},
	}

	for _, tc := range cases {
		if got := CanTransitionPurchaseOrderStatus(tc.from, tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}
