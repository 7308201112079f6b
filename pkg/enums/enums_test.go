package enums

import "testing"

func TestOrderStatusRankAndTerminal(t *testing.T) {
	if OrderStatusPlaced.Rank() >= OrderStatusConfirmed.Rank() {
		t.Fatalf("placed should rank before confirmed")
	}
	if OrderStatusPacked.Rank() >= OrderStatusOutForDelivery.Rank() {
		t.Fatalf("packed should rank before out_for_delivery")
	}
	if OrderStatusCancelled.Rank() != -1 {
		t.Fatalf("cancelled should not be on the ladder")
	}
	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if OrderStatusOutForDelivery.IsTerminal() {
		t.Fatalf("out_for_delivery should not be terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("out_for_delivery")
	if err != nil || got != OrderStatusOutForDelivery {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestUserRoleIsStaff(t *testing.T) {
	cases := map[UserRole]bool{
		UserRoleCustomer:   false,
		UserRolePharmacist: true,
		UserRoleAdmin:      true,
	}
	for role, want := range cases {
		if got := role.IsStaff(); got != want {
			t.Fatalf("role %s expected staff=%v got %v", role, want, got)
		}
	}
	if _, err := ParseUserRole("courier"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestPrescriptionStatusIsReviewed(t *testing.T) {
	if PrescriptionStatusUploaded.IsReviewed() || PrescriptionStatusUnderReview.IsReviewed() {
		t.Fatalf("pending statuses should not count as reviewed")
	}
	if !PrescriptionStatusApproved.IsReviewed() || !PrescriptionStatusRejected.IsReviewed() {
		t.Fatalf("decisions should count as reviewed")
	}
}

func TestAgentStatusIsEngaged(t *testing.T) {
	if !AgentStatusAssigned.IsEngaged() || !AgentStatusBusy.IsEngaged() {
		t.Fatalf("assigned and busy are engaged")
	}
	if AgentStatusAvailable.IsEngaged() || AgentStatusOffline.IsEngaged() {
		t.Fatalf("available and offline are not engaged")
	}
}

func TestOrderStatusNext(t *testing.T) {
	if OrderStatusPlaced.Next() != OrderStatusConfirmed {
		t.Fatalf("placed should lead to confirmed")
	}
	if OrderStatusOutForDelivery.Next() != OrderStatusDelivered {
		t.Fatalf("out_for_delivery should lead to delivered")
	}
	if OrderStatusDelivered.Next() != "" || OrderStatusCancelled.Next() != "" {
		t.Fatalf("terminal statuses have no next step")
	}
}
