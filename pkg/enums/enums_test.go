package enums

import "testing"

func TestParseListingStatus(t *testing.T) {
	for _, raw := range []string{"pending", "approved", "rejected"} {
		got, err := ParseListingStatus(raw)
		if err != nil {
			t.Fatalf("ParseListingStatus(%q) error: %v", raw, err)
		}
		if string(got) != raw {
			t.Fatalf("expected %q got %q", raw, got)
		}
	}
	if _, err := ParseListingStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestListingStatusIsTerminal(t *testing.T) {
	if ListingStatusPending.IsTerminal() {
		t.Fatal("pending must not be terminal")
	}
	if !ListingStatusApproved.IsTerminal() || !ListingStatusRejected.IsTerminal() {
		t.Fatal("approved and rejected must be terminal")
	}
}

func TestParseListingCondition(t *testing.T) {
	if _, err := ParseListingCondition("used"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseListingCondition("refurbished"); err == nil {
		t.Fatal("expected error for unknown condition")
	}
}

func TestProfileRoleValidity(t *testing.T) {
	if !ProfileRoleProfessional.IsValid() {
		t.Fatal("professional should be valid")
	}
	if ProfileRole("admin").IsValid() {
		t.Fatal("admin is a system role, not a profile role")
	}
	if _, err := ParseSystemRole("admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReportStatusAndOutboxEnums(t *testing.T) {
	if _, err := ParseReportStatus("dismissed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ReportStatus("closed").IsValid() {
		t.Fatal("closed is not a report status")
	}
	if !ReportTargetListing.IsValid() {
		t.Fatal("listing target should be valid")
	}
	if _, err := ParseOutboxEventType("listing_moderated"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOutboxAggregateType("order"); err == nil {
		t.Fatal("expected error for unknown aggregate")
	}
}
