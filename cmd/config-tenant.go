package cmd

import (
	"os"

	"github.com/relloyd/fieldpipe/actions"
	"github.com/relloyd/fieldpipe/config"
	"github.com/spf13/cobra"
)

var tenantAddCfg = actions.TenantAddConfig{}

var configTenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Configure FieldRoutes office credentials",
}

var configTenantAddCmd = &cobra.Command{
	Use:          "add",
	Short:        "Add or replace the credentials of an office",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantAddCfg.ConfigFile = config.Credentials
		tenantAddCfg.Out = os.Stdout
		return actions.RunTenantAdd(&tenantAddCfg)
	},
}

var configTenantListCmd = &cobra.Command{
	Use:          "list",
	Short:        "Print the offices a run would extract from, with secrets masked",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := pipeFlags.logger()
		store, err := actions.LoadTenants(log, config.Credentials, os.Getenv)
		if err != nil {
			return err
		}
		return actions.RunTenantList(store, os.Stdout)
	},
}

var configTenantRemoveCmd = &cobra.Command{
	Use:          "remove <tenant-id>",
	Aliases:      []string{"rm", "del", "delete"},
	Short:        "Remove the credentials of an office",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunTenantRemove(config.Credentials, args[0], os.Stdout)
	},
}

func init() {
	configCmd.AddCommand(configTenantCmd)
	configTenantCmd.AddCommand(configTenantAddCmd, configTenantListCmd, configTenantRemoveCmd)
	f := configTenantAddCmd.Flags()
	f.SortFlags = false
	f.StringVarP(&tenantAddCfg.Tenant.ID, "id", "i", "", "* Tenant id, e.g. office_1")
	f.StringVarP(&tenantAddCfg.Tenant.Name, "name", "n", "", "Office display name")
	f.StringVarP(&tenantAddCfg.Tenant.APIKey, "api-key", "k", "", "* API authentication key")
	f.StringVarP(&tenantAddCfg.Tenant.Token, "token", "t", "", "* API authentication token")
	_ = configTenantAddCmd.MarkFlagRequired("id")
	_ = configTenantAddCmd.MarkFlagRequired("api-key")
	_ = configTenantAddCmd.MarkFlagRequired("token")
}
