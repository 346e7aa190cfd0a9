package constants

import (
	"regexp"
	"testing"
	"time"
)

func TestBatchIDTimeFormat(t *testing.T) {
	got := time.Date(2025, 6, 9, 14, 30, 5, 0, time.UTC).Format(TimeFormatBatchID)
	if got != "20250609_143005" {
		t.Fatalf("unexpected batch id time format: %v", got)
	}
	if !regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`).MatchString(time.Now().Format(DateFormat)) {
		t.Fatal("DateFormat must render YYYY-MM-DD")
	}
}

func TestTenantSlots(t *testing.T) {
	if PrimaryTenantID != TenantIDPrefix+"1" {
		t.Fatalf("primary tenant %v should be slot 1", PrimaryTenantID)
	}
	if RawInsertRowsPerStmt > RawLoadChunkSize {
		t.Fatal("rows per statement must not exceed the raw commit chunk")
	}
}
