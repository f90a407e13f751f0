package dbtypes

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFailureListPrependKeepsMostRecentFirst(t *testing.T) {
	base := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	list := FailureList{}
	for i := 0; i < 3; i++ {
		list = list.Prepend(FailureRecord{
			GatewayTxID: "imp_" + string(rune('a'+i)),
			Reason:      "card declined",
			FailedAt:    base.Add(time.Duration(i) * time.Hour),
		})
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].FailedAt.Before(list[i].FailedAt) {
			t.Fatalf("records not sorted most-recent-first at %d", i)
		}
	}
}

func TestFailureListRoundTrip(t *testing.T) {
	list := FailureList{{
		GatewayTxID: "imp_123",
		Params: SubmittedCharge{
			MerchantUID: "B1_ch3",
			CustomerUID: "cust_abc",
			Name:        "subcycle subscription",
			Amount:      decimal.NewFromInt(1000),
			VAT:         decimal.NewFromInt(100),
		},
		Reason:   "insufficient funds",
		FailedAt: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
	}}

	value, err := list.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var decoded FailureList
	if err := decoded.Scan(value); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 record, got %d", len(decoded))
	}
	if decoded[0].GatewayTxID != "imp_123" {
		t.Fatalf("unexpected tx id %q", decoded[0].GatewayTxID)
	}
	if !decoded[0].Params.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("amount lost in round trip: %s", decoded[0].Params.Amount)
	}
}

func TestFailureListScanNil(t *testing.T) {
	var list FailureList
	if err := list.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
}
