package logger

import (
	"net/http"
	"testing"
)

func TestMaskAuthorization(t *testing.T) {
	got := MaskAuthorization("Bearer abcdef1234")
	want := "Bearer ****1234"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskHeadersMasksStripeSignature(t *testing.T) {
	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=12345,v1=deadbeefcafe")
	headers.Set("Content-Type", "application/json")

	masked := MaskHeaders(headers)
	if masked["Stripe-Signature"] != "****cafe" {
		t.Fatalf("expected masked signature, got %q", masked["Stripe-Signature"])
	}
	if masked["Content-Type"] != "application/json" {
		t.Fatalf("expected content type untouched, got %q", masked["Content-Type"])
	}
}

func TestMaskHeadersShortValue(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-Api-Key", "abc")

	masked := MaskHeaders(headers)
	if masked["X-Api-Key"] != "****abc" {
		t.Fatalf("expected short value fully masked, got %q", masked["X-Api-Key"])
	}
}
