package tier

import "testing"

func TestUnknownTierResolvesToFree(t *testing.T) {
	catalog := DefaultCatalog()
	got := catalog.Limits(Tier("enterprise"))
	want := catalog.Limits(TierFree)
	if got != want {
		t.Fatalf("expected free limits for unknown tier, got %+v", got)
	}
}

func TestPremiumLibraryAccessUnlimited(t *testing.T) {
	limits := DefaultCatalog().Limits(TierPremium)
	if !IsUnlimited(limits.LibraryAccessPerMonth) {
		t.Fatalf("expected unlimited library access for premium, got %d", limits.LibraryAccessPerMonth)
	}
}
