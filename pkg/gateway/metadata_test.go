package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dkemp/subcycle-backend/pkg/enums"
)

func TestChargeMetadataEncodeDefaultsVersion(t *testing.T) {
	raw, err := ChargeMetadata{
		BusinessID:  "B1",
		MerchantUID: "B1_ch0",
		IntentType:  enums.PaymentIntentInitial,
	}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeMetadata(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Version != MetadataVersion {
		t.Fatalf("expected version %d, got %d", MetadataVersion, decoded.Version)
	}
}

func TestChargeMetadataEncodeValidation(t *testing.T) {
	if _, err := (ChargeMetadata{MerchantUID: "B1_ch0", IntentType: enums.PaymentIntentInitial}).Encode(); err == nil {
		t.Fatal("expected error for missing business id")
	}
	if _, err := (ChargeMetadata{BusinessID: "B1", IntentType: enums.PaymentIntentInitial}).Encode(); err == nil {
		t.Fatal("expected error for missing merchant uid")
	}
	if _, err := (ChargeMetadata{BusinessID: "B1", MerchantUID: "B1_ch0", IntentType: "BOGUS"}).Encode(); err == nil {
		t.Fatal("expected error for invalid intent type")
	}
}

func TestDecodeMetadataRejectsUnknownVersion(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"version":      MetadataVersion + 1,
		"merchant_uid": "B1_ch0",
	})
	if _, err := DecodeMetadata(raw); err == nil {
		t.Fatal("expected error for future version")
	}
	if _, err := DecodeMetadata(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if _, err := DecodeMetadata(json.RawMessage(`{"version":1}`)); err == nil {
		t.Fatal("expected error for missing merchant uid")
	}
}

func TestChargeMetadataRoundTrip(t *testing.T) {
	in := ChargeMetadata{
		Version:     MetadataVersion,
		BusinessID:  "B7",
		MerchantUID: "B7_ch12",
		CustomerUID: "cust_7",
		Name:        "monthly box",
		IntentType:  enums.PaymentIntentScheduled,
		BillingPlan: enums.BillingPlan26Week,
		ScheduledAt: time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("45000.50"),
		VAT:         decimal.NewFromInt(4500),
	}
	raw, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeMetadata(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.BillingPlan != in.BillingPlan || !out.ScheduledAt.Equal(in.ScheduledAt) {
		t.Fatalf("round-trip mismatch: %+v", out)
	}
	if !out.Amount.Equal(in.Amount) || !out.VAT.Equal(in.VAT) {
		t.Fatalf("money round-trip mismatch: amount=%s vat=%s", out.Amount, out.VAT)
	}
}
