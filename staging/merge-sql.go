package staging

import (
	"fmt"
	"strings"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/fieldpipe/catalog"
	h "github.com/relloyd/fieldpipe/helper"
	"github.com/relloyd/fieldpipe/rdbms"
)

// Metadata columns carried by every staging table.
const (
	ColRawLoadTimestamp     = "RAW_LOAD_TIMESTAMP"
	ColStagingLoadTimestamp = "STAGING_LOAD_TIMESTAMP"
	ColBatchID              = "BATCH_ID"
	ColSourceFile           = "SOURCE_FILE"
)

const (
	srcAlias = "src"
	tgtAlias = "tgt"
)

// MergeSqlConfig holds everything needed to render the MERGE for one entity.
// KeyCols and OtherCols map staging column name to the expression projecting it from RAW_JSON, in
// declaration order.
type MergeSqlConfig struct {
	Source         rdbms.SchemaTable
	Target         rdbms.SchemaTable
	KeyCols        *om.OrderedMap
	OtherCols      *om.OrderedMap
	LastUpdatedCol string
	FilterOnBatch  bool // adds "BATCH_ID = ?" so the caller must bind the batch id
}

// NewMergeSqlConfig builds the config for entity e reading from raw and writing to stg.
func NewMergeSqlConfig(e catalog.Entity, raw rdbms.SchemaTable, stg rdbms.SchemaTable, filterOnBatch bool) *MergeSqlConfig {
	cfg := &MergeSqlConfig{
		Source:         raw,
		Target:         stg,
		KeyCols:        om.NewOrderedMap(),
		OtherCols:      om.NewOrderedMap(),
		LastUpdatedCol: e.Staging.LastUpdated,
		FilterOnBatch:  filterOnBatch,
	}
	for _, c := range e.Staging.Columns {
		if c.Name == e.Staging.Key {
			cfg.KeyCols.Set(c.Name, c.Expression())
		} else {
			cfg.OtherCols.Set(c.Name, c.Expression())
		}
	}
	return cfg
}

func (cfg *MergeSqlConfig) allCols() []string {
	return append(h.OrderedMapKeysToStringSlice(cfg.KeyCols), h.OrderedMapKeysToStringSlice(cfg.OtherCols)...)
}

func (cfg *MergeSqlConfig) projections() []string {
	retval := make([]string, 0, cfg.KeyCols.Len()+cfg.OtherCols.Len())
	for _, m := range []*om.OrderedMap{cfg.KeyCols, cfg.OtherCols} {
		iter := m.IterFunc()
		for kv, ok := iter(); ok; kv, ok = iter() {
			retval = append(retval, fmt.Sprintf("%v AS %v", kv.Value, kv.Key))
		}
	}
	return retval
}

func (cfg *MergeSqlConfig) keyExpressions() []string {
	retval := make([]string, 0, cfg.KeyCols.Len())
	iter := cfg.KeyCols.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, kv.Value.(string))
	}
	return retval
}

func (cfg *MergeSqlConfig) lastUpdatedExpression() string {
	if v, ok := cfg.OtherCols.Get(cfg.LastUpdatedCol); ok {
		return v.(string)
	}
	if v, ok := cfg.KeyCols.Get(cfg.LastUpdatedCol); ok {
		return v.(string)
	}
	return cfg.LastUpdatedCol
}

func getMergeSqlTemplate() string {
	return `MERGE INTO <TARGET> AS <TGT>
USING (
SELECT <PROJECTIONS>,
LOAD_TIMESTAMP AS RAW_LOAD_TIMESTAMP,
BATCH_ID,
SOURCE_FILE
FROM <SOURCE>
WHERE <WHERE>
QUALIFY ROW_NUMBER() OVER (PARTITION BY <PARTITION> ORDER BY <LAST-UPDATED-EXPR> DESC NULLS LAST, LOAD_TIMESTAMP DESC) = 1
) AS <SRC>
ON <KEY-COLS-EQUALS>
WHEN MATCHED AND (<SUPERSEDES>) THEN UPDATE SET
<OTHER-COLS-EQUALS>
WHEN NOT MATCHED THEN INSERT (<ALL-COLS>)
VALUES (<SRC-COLS>)`
}

// GenerateMergeSql renders the idempotent latest-wins upsert from the raw capture table into the
// staging table. Source rows are reduced to one per key: the latest last-updated value wins and
// ties fall to the latest raw load. A matched row is only overwritten by a later last-updated value,
// or by a later raw load when last-updated does not go backwards.
func GenerateMergeSql(cfg *MergeSqlConfig) string {
	keyCols := h.OrderedMapKeysToStringSlice(cfg.KeyCols)
	allCols := cfg.allCols()
	where := make([]string, 0, 2)
	for _, expr := range cfg.keyExpressions() {
		where = append(where, fmt.Sprintf("%v IS NOT NULL", expr))
	}
	if cfg.FilterOnBatch {
		where = append(where, "BATCH_ID = ?")
	}
	lu := cfg.LastUpdatedCol
	supersedes := fmt.Sprintf("%[1]v.%[3]v > %[2]v.%[3]v OR (%[1]v.%[4]v > %[2]v.%[4]v AND (%[1]v.%[3]v >= %[2]v.%[3]v OR %[1]v.%[3]v IS NULL OR %[2]v.%[3]v IS NULL))",
		srcAlias, tgtAlias, lu, ColRawLoadTimestamp)
	updates := h.GenerateSliceOfColsEqualCols(h.OrderedMapKeysToStringSlice(cfg.OtherCols), tgtAlias, srcAlias)
	updates = append(updates,
		fmt.Sprintf("%v.%v = %v.%v", tgtAlias, ColRawLoadTimestamp, srcAlias, ColRawLoadTimestamp),
		fmt.Sprintf("%v.%v = CURRENT_TIMESTAMP()", tgtAlias, ColStagingLoadTimestamp),
		fmt.Sprintf("%v.%v = %v.%v", tgtAlias, ColBatchID, srcAlias, ColBatchID),
		fmt.Sprintf("%v.%v = %v.%v", tgtAlias, ColSourceFile, srcAlias, ColSourceFile),
	)
	insertCols := append(append([]string{}, allCols...), ColRawLoadTimestamp, ColStagingLoadTimestamp, ColBatchID, ColSourceFile)
	srcCols := append(h.PrefixStrings(allCols, srcAlias),
		srcAlias+"."+ColRawLoadTimestamp, "CURRENT_TIMESTAMP()", srcAlias+"."+ColBatchID, srcAlias+"."+ColSourceFile)

	r := strings.NewReplacer(
		"<TARGET>", cfg.Target.String(),
		"<TGT>", tgtAlias,
		"<SRC>", srcAlias,
		"<PROJECTIONS>", strings.Join(cfg.projections(), ",\n"),
		"<SOURCE>", cfg.Source.String(),
		"<WHERE>", strings.Join(where, " AND "),
		"<PARTITION>", strings.Join(cfg.keyExpressions(), ", "),
		"<LAST-UPDATED-EXPR>", cfg.lastUpdatedExpression(),
		"<KEY-COLS-EQUALS>", h.GenerateStringOfColsEqualsCols(keyCols, tgtAlias, srcAlias, " AND "),
		"<SUPERSEDES>", supersedes,
		"<OTHER-COLS-EQUALS>", strings.Join(updates, ",\n"),
		"<ALL-COLS>", strings.Join(insertCols, ", "),
		"<SRC-COLS>", strings.Join(srcCols, ", "),
	)
	return r.Replace(getMergeSqlTemplate())
}

// GenerateTableDDL returns CREATE TABLE for the typed staging table of e.
func GenerateTableDDL(e catalog.Entity, t rdbms.SchemaTable) string {
	cols := make([]string, 0, len(e.Staging.Columns)+4)
	for _, c := range e.Staging.Columns {
		if c.Name == e.Staging.Key {
			cols = append(cols, c.Definition()+" PRIMARY KEY")
		} else {
			cols = append(cols, c.Definition())
		}
	}
	cols = append(cols,
		ColRawLoadTimestamp+" TIMESTAMP_NTZ",
		ColStagingLoadTimestamp+" TIMESTAMP_NTZ DEFAULT CURRENT_TIMESTAMP()",
		ColBatchID+" VARCHAR(255)",
		ColSourceFile+" VARCHAR(255)",
	)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %v (\n%v\n)", t, strings.Join(cols, ",\n"))
}
