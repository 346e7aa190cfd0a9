package cmd

import (
	"os"

	"github.com/relloyd/fieldpipe/actions"
	"github.com/relloyd/fieldpipe/config"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/rdbms"
	"github.com/spf13/cobra"
)

var warehouseDetails = rdbms.SnowflakeConnectionDetails{}

var configWarehouseCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "Configure the Snowflake login",
}

var configWarehouseSetCmd = &cobra.Command{
	Use:          "set",
	Short:        "Save the Snowflake login used for the raw and staging layers",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunWarehouseSet(config.Credentials, warehouseDetails, os.Stdout)
	},
}

var configWarehouseShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "Print the effective Snowflake login with the password masked",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunWarehouseShow(config.Credentials, os.Getenv, os.Stdout)
	},
}

func init() {
	configCmd.AddCommand(configWarehouseCmd)
	configWarehouseCmd.AddCommand(configWarehouseSetCmd, configWarehouseShowCmd)
	f := configWarehouseSetCmd.Flags()
	f.SortFlags = false
	f.StringVarP(&warehouseDetails.Account, "account", "a", "", "* Snowflake account")
	f.StringVarP(&warehouseDetails.User, "user", "u", "", "* Username")
	f.StringVarP(&warehouseDetails.Password, "password", "P", "", "* Password for the user")
	f.StringVarP(&warehouseDetails.Warehouse, "warehouse", "w", constants.DefaultWarehouse, "Compute warehouse name")
	f.StringVarP(&warehouseDetails.Database, "database-name", "D", constants.DefaultRawDatabase, "Raw database name")
	f.StringVarP(&warehouseDetails.Schema, "schema", "s", constants.DefaultSchema, "Schema name")
	f.StringVarP(&warehouseDetails.Role, "role", "r", "", "Role (omit to use the user's default)")
	_ = configWarehouseSetCmd.MarkFlagRequired("account")
	_ = configWarehouseSetCmd.MarkFlagRequired("user")
	_ = configWarehouseSetCmd.MarkFlagRequired("password")
}
