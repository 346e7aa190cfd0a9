package helper

import (
	"strings"
	"testing"

	om "github.com/cevaris/ordered_map"
)

func TestCsvToStringSliceTrimSpaces(t *testing.T) {
	got := CsvToStringSliceTrimSpaces(" customer, appointment ,,ticket ")
	expected := []string{"customer", "appointment", "ticket"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v; got %v", expected, got)
	}
	for idx := range expected {
		if got[idx] != expected[idx] {
			t.Fatalf("expected %q at %v; got %q", expected[idx], idx, got[idx])
		}
	}
	if len(CsvToStringSliceTrimSpaces("")) != 0 {
		t.Fatal("expected empty slice for empty input")
	}
}

func TestOrderedMapKeysToStringSlice(t *testing.T) {
	m := om.NewOrderedMap()
	m.Set("B", 1)
	m.Set("A", 2)
	m.Set("C", 3)
	got := OrderedMapKeysToStringSlice(m)
	if strings.Join(got, ",") != "B,A,C" {
		t.Fatalf("expected insertion order B,A,C; got %v", got)
	}
}

func TestGenerateStringOfColsEqualsCols(t *testing.T) {
	got := GenerateStringOfColsEqualsCols([]string{"A", "B"}, "target", "source", ", ")
	expected := "target.A = source.A, target.B = source.B"
	if got != expected {
		t.Fatalf("expected %q; got %q", expected, got)
	}
}

func TestGetTrueFalseStringAsBool(t *testing.T) {
	cases := map[string]bool{"true": true, " TRUE ": true, "1": true, "yes": true, "false": false, "": false, "truest": false}
	for in, expected := range cases {
		if got := GetTrueFalseStringAsBool(in); got != expected {
			t.Fatalf("input %q: expected %v; got %v", in, expected, got)
		}
	}
}

func TestEscapeSqlString(t *testing.T) {
	if got := EscapeSqlString("O'Brien"); got != "O''Brien" {
		t.Fatalf("expected O''Brien; got %v", got)
	}
}

func TestGetFlagEnvVarName(t *testing.T) {
	if got := GetFlagEnvVarName("start-date"); got != "FP_START_DATE" {
		t.Fatalf("expected FP_START_DATE; got %v", got)
	}
	if got := GetTenantEnvVarName(3, "api_key"); got != "PESTROUTES_OFFICE_3_API_KEY" {
		t.Fatalf("expected PESTROUTES_OFFICE_3_API_KEY; got %v", got)
	}
}
