package actions

import (
	"fmt"
	"time"

	"github.com/relloyd/fieldpipe/constants"
	"github.com/rs/xid"
)

// NewBatchID returns e.g. full_pipeline_20250609_143000_c5t1hbb2f3k0g3f1a2b0.
// The xid suffix keeps runs started in the same second apart.
func NewBatchID(prefix string, t time.Time) string {
	return fmt.Sprintf("%v_%v_%v", prefix, t.Format(constants.TimeFormatBatchID), xid.New().String())
}
