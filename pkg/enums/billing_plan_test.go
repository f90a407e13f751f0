package enums

import "testing"

func TestBillingPlanCadences(t *testing.T) {
	tests := []struct {
		plan  BillingPlan
		weeks int
	}{
		{BillingPlan4Week, 4},
		{BillingPlan26Week, 26},
		{BillingPlan52Week, 52},
	}
	for _, tt := range tests {
		if got := tt.plan.CadenceWeeks(); got != tt.weeks {
			t.Fatalf("plan %s expected %d weeks, got %d", tt.plan, tt.weeks, got)
		}
		if !tt.plan.IsValid() {
			t.Fatalf("plan %s should be valid", tt.plan)
		}
	}
}

func TestParseBillingPlan(t *testing.T) {
	plan, err := ParseBillingPlan("4_WEEK")
	if err != nil {
		t.Fatalf("ParseBillingPlan: %v", err)
	}
	if plan != BillingPlan4Week {
		t.Fatalf("unexpected plan %s", plan)
	}

	if _, err := ParseBillingPlan("13_WEEK"); err == nil {
		t.Fatal("expected error for unknown plan")
	}
	if BillingPlan("13_WEEK").IsValid() {
		t.Fatal("unknown plan should be invalid")
	}
}

func TestPaymentStatusTransitions(t *testing.T) {
	if !PaymentStatusPending.CanTransitionTo(PaymentStatusPaid) {
		t.Fatal("PENDING -> PAID must be allowed")
	}
	if !PaymentStatusPending.CanTransitionTo(PaymentStatusFailed) {
		t.Fatal("PENDING -> FAILED must be allowed")
	}
	if !PaymentStatusFailed.CanTransitionTo(PaymentStatusPaid) {
		t.Fatal("FAILED -> PAID (retry) must be allowed")
	}
	if PaymentStatusPaid.CanTransitionTo(PaymentStatusRefunded) {
		t.Fatal("PAID -> REFUNDED is not implemented and must be disallowed")
	}
	if !PaymentStatusPaid.IsTerminal() || !PaymentStatusRefunded.IsTerminal() {
		t.Fatal("PAID and REFUNDED are terminal")
	}
	if PaymentStatusPending.IsTerminal() || PaymentStatusFailed.IsTerminal() {
		t.Fatal("PENDING and FAILED are not terminal")
	}
}
