package staging

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Statistics describes the current contents of one staging table.
type Statistics struct {
	Entity         string                 `json:"entity"`
	Table          string                 `json:"table"`
	TotalRecords   int64                  `json:"total_records"`
	EarliestUpdate *string                `json:"earliest_update"`
	LatestUpdate   *string                `json:"latest_update"`
	UniqueBatches  int64                  `json:"unique_batches"`
	Extra          map[string]interface{} `json:"extra,omitempty"` // entity specific metrics from the catalog
}

// StatisticsSql returns the single query that computes the base metrics plus the entity's extras.
func (m *Merger) StatisticsSql(name string) (string, error) {
	e, err := m.Catalog.Get(name)
	if err != nil {
		return "", err
	}
	lu := e.Staging.LastUpdated
	cols := []string{
		"COUNT(*) AS total_records",
		fmt.Sprintf("MIN(%v) AS earliest_update", lu),
		fmt.Sprintf("MAX(%v) AS latest_update", lu),
		fmt.Sprintf("COUNT(DISTINCT %v) AS unique_batches", ColBatchID),
	}
	for _, s := range e.Staging.Statistics {
		cols = append(cols, fmt.Sprintf("%v AS %v", s.Expression, s.Name))
	}
	return fmt.Sprintf("SELECT %v FROM %v", strings.Join(cols, ", "), m.stagingTable(e)), nil
}

// Statistics reads the metrics of the named entity's staging table.
func (m *Merger) Statistics(ctx context.Context, name string) (Statistics, error) {
	e, err := m.Catalog.Get(name)
	if err != nil {
		return Statistics{}, err
	}
	q, err := m.StatisticsSql(name)
	if err != nil {
		return Statistics{}, err
	}
	retval := Statistics{Entity: e.Name, Table: m.stagingTable(e).String()}
	rows, err := m.Db.QueryContext(ctx, q)
	if err != nil {
		return retval, errors.Wrapf(err, "error reading statistics for %v", retval.Table)
	}
	defer rows.Close()
	n := 4 + len(e.Staging.Statistics)
	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return retval, err
		}
		return retval, fmt.Errorf("no statistics returned for %v", retval.Table)
	}
	vals, err := scanRow(rows, n)
	if err != nil {
		return retval, err
	}
	retval.TotalRecords = toInt64(vals[0])
	retval.EarliestUpdate = toTimestampString(vals[1])
	retval.LatestUpdate = toTimestampString(vals[2])
	retval.UniqueBatches = toInt64(vals[3])
	if len(e.Staging.Statistics) > 0 {
		retval.Extra = make(map[string]interface{}, len(e.Staging.Statistics))
		for idx, s := range e.Staging.Statistics {
			retval.Extra[s.Name] = toNumber(vals[4+idx])
		}
	}
	return retval, rows.Err()
}

func toTimestampString(v interface{}) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		s = t.Format("2006-01-02 15:04:05")
	case []byte:
		s = string(t)
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

// toNumber normalises driver values; NULL aggregates become 0.
func toNumber(v interface{}) interface{} {
	switch n := v.(type) {
	case nil:
		return int64(0)
	case int64, float64:
		return n
	case int:
		return int64(n)
	case []byte:
		return parseNumber(string(n))
	case string:
		return parseNumber(n)
	}
	return v
}

func parseNumber(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
