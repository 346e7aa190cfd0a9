package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/relloyd/fieldpipe/actions"
	"github.com/spf13/cobra"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the entity catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every entity the pipeline knows about",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := actions.LoadCatalog(catalogFile)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ENTITY\tSCOPE\tTABLE\tDATE FIELDS")
		for _, e := range cat.Entities() {
			scope := "global"
			if e.TenantScoped {
				scope = "tenant"
			}
			_, _ = fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", e.Name, scope, e.Table, strings.Join(e.DateFields, ","))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
	switches.addFlag(catalogListCmd, &catalogFile, "catalog-file", "", false, "")
}
