package fieldroutes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ID is an opaque entity identifier exactly as the search endpoint returned it.
// Numeric ids keep their digits; string ids keep their text.
type ID string

func (id ID) numeric() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// MarshalJSON writes numeric ids as JSON numbers and anything else as a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, ok := id.numeric(); ok {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("unsupported identifier %s", string(b))
	}
	*id = ID(n.String())
	return nil
}

// Less orders numeric ids numerically and everything else lexically, numbers first.
func (id ID) Less(o ID) bool {
	a, aok := id.numeric()
	b, bok := o.numeric()
	switch {
	case aok && bok:
		return a < b
	case aok:
		return true
	case bok:
		return false
	default:
		return id < o
	}
}

// SortIDs sorts ids in place using ID.Less.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// Record is one entity record as returned by the detail endpoint, plus provenance fields.
// Numbers are held as json.Number so they round trip without loss.
type Record map[string]interface{}

// Filter is one search predicate.
type Filter struct {
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Between builds an inclusive date range filter.
func Between(start, end string) Filter {
	return Filter{Operator: "BETWEEN", Value: []string{start, end}}
}

// GreaterThan builds the id cursor filter.
func GreaterThan(id ID) Filter {
	return Filter{Operator: ">", Value: string(id)}
}

// Filters maps attribute names to predicates; all predicates are ANDed.
type Filters map[string]Filter
