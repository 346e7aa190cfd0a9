package cmd

import (
	"fmt"

	"github.com/relloyd/fieldpipe/constants"
	"github.com/spf13/cobra"
)

var twelveFactorCmd = &cobra.Command{
	Use:   "12f",
	Short: `View help notes for running in Twelve-Factor mode`,
	Long: fmt.Sprintf(`
FieldPipe can be controlled by environment variables, which suits schedulers,
containers and AWS Lambda.

To enable Twelve-Factor mode, set environment variable %[1]s_12FACTOR_MODE=1
(or %[1]s_12FACTOR_MODE=lambda to run as a Lambda handler). To supply flags
documented by the regular command-line usage, set an equivalent environment
variable using the following convention:

%[1]s_<flag long-name in upper case with underscores>

Credentials are read from PESTROUTES_OFFICE_<n>_API_KEY, PESTROUTES_OFFICE_<n>_TOKEN,
PESTROUTES_OFFICE_<n>_NAME and SNOWFLAKE_ACCOUNT|USER|PASSWORD|WAREHOUSE|DATABASE|SCHEMA|ROLE.

For example, this will extract the last 6 hours of every entity and merge the
results into staging:

export %[1]s_12FACTOR_MODE=1
export %[1]s_LOG_LEVEL=info
export %[1]s_COMMAND=run
export %[1]s_SUBCOMMAND=incremental
export %[1]s_HOURS=6
export %[1]s_STAGING=true

Use %[1]s_COMMAND=run with %[1]s_SUBCOMMAND=entity and %[1]s_ENTITY=<name> for a single
entity, or %[1]s_COMMAND=merge to run staging alone.

Then execute the CLI tool without any arguments or flags to kick off the pipeline.
`, constants.EnvVarPrefix),
}

func init() {
	rootCmd.AddCommand(twelveFactorCmd)
}
