package cmd

import (
	"fmt"
	"os"

	"github.com/relloyd/fieldpipe/actions"
	"github.com/relloyd/fieldpipe/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure tenants, the warehouse login and default flag values",
	Long: fmt.Sprintf(`Configure tenants, the warehouse login & default parameters where:

- Tenant and warehouse credentials are stored in file %q
- Default flag values are stored in file %q

Environment variables PESTROUTES_OFFICE_<n>_API_KEY|TOKEN|NAME and SNOWFLAKE_* fill any gaps.
`, config.Credentials.FullPath, config.Main.FullPath),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if twelveFactorMode {
			return fmt.Errorf("configuration cannot be changed when %v is set (use environment variables instead)", envVarTwelveFactorMode)
		}
		return loadEnvFile(envFile)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// config defaults

var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Configure default values for command flags",
	Long: fmt.Sprintf(`Configure default values for command flags, where:

- Defaults are stored in config file %q`, config.Main.FullPath),
}

var defaultAddCfg = actions.DefaultAddConfig{}

var defaultAddCmd = &cobra.Command{
	Use:          "add",
	Short:        "Add or set a default flag value",
	Long:         fmt.Sprintf("Add a default flag value to config file %q", config.Main.FullPath),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		defaultAddCfg.ConfigFile = config.Main
		defaultAddCfg.Out = os.Stdout
		return actions.RunDefaultAdd(&defaultAddCfg)
	},
}

var defaultRemoveCfg = actions.DefaultRemoveConfig{}

var defaultRemoveCmd = &cobra.Command{
	Use:          "remove",
	Aliases:      []string{"rm", "del", "delete"},
	Short:        "Remove a default flag value",
	Long:         fmt.Sprintf("Remove a default flag value from config file %q", config.Main.FullPath),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		defaultRemoveCfg.ConfigFile = config.Main
		defaultRemoveCfg.Out = os.Stdout
		return actions.RunDefaultRemove(&defaultRemoveCfg)
	},
}

var defaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all default flag values",
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunDefaultList(config.Main, os.Stdout)
	},
}

func init() {
	configCmd.AddCommand(defaultsCmd)
	defaultsCmd.AddCommand(defaultAddCmd, defaultListCmd, defaultRemoveCmd)
	defaultAddCmd.Flags().SortFlags = false
	defaultAddCmd.Flags().StringVarP(&defaultAddCfg.Key, "key", "k", "", "* The key to set in config. Match the name of the flag\n"+
		"to have this value take effect in commands")
	defaultAddCmd.Flags().StringVarP(&defaultAddCfg.Value, "value", "v", "", "* The default value to set")
	defaultAddCmd.Flags().BoolVarP(&defaultAddCfg.Force, "force", "f", false, "Overwrite existing values")
	_ = defaultAddCmd.MarkFlagRequired("key")
	_ = defaultAddCmd.MarkFlagRequired("value")
	defaultRemoveCmd.Flags().StringVarP(&defaultRemoveCfg.Key, "key", "k", "",
		"The key to remove from config")
	_ = defaultRemoveCmd.MarkFlagRequired("key")
}
