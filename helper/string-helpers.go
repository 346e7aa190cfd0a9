package helper

import (
	"fmt"
	"regexp"
	"strings"

	om "github.com/cevaris/ordered_map"
)

// CsvToStringSliceTrimSpaces converts a string of the form, 'f1, f2 ,f3...' into a slice of string values.
// Empty values are dropped, so an empty input produces an empty slice.
func CsvToStringSliceTrimSpaces(s string) []string {
	retval := make([]string, 0)
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			retval = append(retval, t)
		}
	}
	return retval
}

// StringSliceToOrderedMap adds each value in s to an ordered map with key and value set to the value in s.
func StringSliceToOrderedMap(s []string) *om.OrderedMap {
	retval := om.NewOrderedMap()
	for _, v := range s {
		retval.Set(v, v)
	}
	return retval
}

// OrderedMapKeysToStringSlice returns the keys of m in insertion order.
// All keys are expected to be of type string.
func OrderedMapKeysToStringSlice(m *om.OrderedMap) []string {
	retval := make([]string, 0, m.Len())
	iter := m.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, kv.Key.(string))
	}
	return retval
}

// GetTrueFalseStringAsBool trims spaces from s and checks if it can regexp (case insensitive) match "true".
// It returns true if there's a match else false.
func GetTrueFalseStringAsBool(s string) bool {
	re := regexp.MustCompile("(?i)^(true|1|yes)$")
	return re.MatchString(strings.TrimSpace(s))
}

// EscapeSqlString doubles single quotes so s can be embedded in a SQL string literal.
func EscapeSqlString(s string) string {
	return strings.Replace(s, `'`, `''`, -1)
}

// NormaliseWhiteSpace collapses runs of white space to a single space and trims the result.
// Handy for comparing generated SQL.
func NormaliseWhiteSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Function to get a string "src.col1 = tgt.col1, src.col2 = tgt.col2" using the colList supplier
// and where the comma can be whatever separator you pass in.
func GenerateStringOfColsEqualsCols(colList []string, srcAlias string, tgtAlias string, separator string) string {
	return strings.Join(GenerateSliceOfColsEqualCols(colList, srcAlias, tgtAlias), separator)
}

func GenerateSliceOfColsEqualCols(colList []string, srcAlias string, tgtAlias string) []string {
	retval := make([]string, len(colList))
	for idx, col := range colList {
		retval[idx] = fmt.Sprintf("%s.%s = %s.%s", srcAlias, col, tgtAlias, col)
	}
	return retval
}

// PrefixStrings returns a copy of s with each value prefixed by alias and a dot.
func PrefixStrings(s []string, alias string) []string {
	retval := make([]string, len(s))
	for idx, v := range s {
		retval[idx] = fmt.Sprintf("%s.%s", alias, v)
	}
	return retval
}
