package cmd

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/relloyd/fieldpipe/config"
	"github.com/relloyd/fieldpipe/helper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "m", desc: "mock switch for testing"},
	"start-date": cliFlag{name: "start-date", shortHand: "s",
		desc: "The first day (YYYY-MM-DD) of the window searched on each entity date field"},
	"end-date": cliFlag{name: "end-date", shortHand: "e",
		desc: "The last day (YYYY-MM-DD) of the window, inclusive"},
	"hours": cliFlag{name: "hours", shortHand: "H",
		desc: "The number of hours to look back from now for an incremental run"},
	"entities": cliFlag{name: "entities", shortHand: "E",
		desc: "The <CSV of entity names> to process (leave blank for the whole catalog)"},
	"tenants": cliFlag{name: "tenants", shortHand: "t",
		desc: "The <CSV of tenant ids> to extract from, e.g. office_1,office_3\n" +
			"(leave blank for every tenant with credentials)"},
	"batch-size": cliFlag{name: "batch-size", shortHand: "b",
		desc: "Number of raw rows in each warehouse transaction"},
	"max-retries": cliFlag{name: "max-retries", shortHand: "r",
		desc: "Number of times a failed tenant extraction is retried with backoff (0 to disable)"},
	"retry-interval": cliFlag{name: "retry-interval", shortHand: "",
		desc: "Seconds to wait before the first retry; later waits grow exponentially"},
	"staging": cliFlag{name: "staging", shortHand: "S",
		desc: "Merge the entities that extracted cleanly into staging after the raw load"},
	"concurrency": cliFlag{name: "concurrency", shortHand: "c",
		desc: "Number of tenants extracted at once for each entity"},
	"batch-id": cliFlag{name: "batch-id", shortHand: "B",
		desc: "Only merge raw rows tagged with this batch id (leave blank to merge everything)"},
	"api-base-url": cliFlag{name: "api-base-url", shortHand: "",
		desc: "Base URL of the FieldRoutes API"},
	"api-timeout": cliFlag{name: "api-timeout", shortHand: "",
		desc: "Seconds to wait for each API request"},
	"catalog-file": cliFlag{name: "catalog-file", shortHand: "",
		desc: "YAML file of entity definitions to use instead of the built-in catalog"},
	"raw-database": cliFlag{name: "raw-database", shortHand: "",
		desc: "Snowflake database holding the raw tables (defaults to the warehouse login database)"},
	"staging-database": cliFlag{name: "staging-database", shortHand: "",
		desc: "Snowflake database holding the staging tables"},
	"schema": cliFlag{name: "schema", shortHand: "",
		desc: "Snowflake schema used in both databases (defaults to the warehouse login schema)"},
	"archive-url": cliFlag{name: "archive-url", shortHand: "A",
		desc: "Optional S3 location to archive raw records as NDJSON. Use format: s3://<bucket>[/<prefix>]\n" +
			"(set AWS environment variables for access)"},
	"archive-region": cliFlag{name: "archive-region", shortHand: "R",
		desc: "AWS region of the archive bucket"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug | trace\""},
	"log-format": cliFlag{name: "log-format", shortHand: "",
		desc: "Log format: \"text | json\""},
	"stats": cliFlag{name: "stats", shortHand: "L",
		desc: "Number of seconds between logging extraction progress (use 0 to disable)"},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
	"force": cliFlag{name: "force", shortHand: "f",
		desc: "Overwrite existing values"},
}

// addFlag adds a flag to cobra.Command c, based on the type of targetVar (which must be a pointer).
// The name of the flag is looked up in map, cliFlags.
// When running in twelveFactorMode, the targetVar is populated using the value of the environment variable for the
// supplied name, or if not set then the supplied default value is used.
// When NOT running in twelveFactorMode, the default value is fetched from config if it exists else the supplied
// defaultValue is applied.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue, config.Main.Get) // get the cliFlag details, with defaults taken from config or the supplied defaultValue
	desc := sw.desc + desc2
	switch p := targetVar.(type) {
	case *string:
		if twelveFactorMode {
			*p = sw.val
		} else {
			c.Flags().StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
			// Signal that the flag was set so defaults take effect.
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *bool:
		defaultBool := helper.GetTrueFalseStringAsBool(sw.val)
		if twelveFactorMode {
			*p = defaultBool
		} else {
			c.Flags().BoolVarP(p, sw.name, sw.shortHand, defaultBool, desc)
			mustSetFlag(c.Flags(), sw.name, strconv.FormatBool(defaultBool))
		}
	case *int:
		defaultInt, err := strconv.Atoi(sw.val)
		if err != nil {
			fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultInt
		} else {
			c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
			if sw.val != "" {
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	// Optionally mark the flag as mandatory.
	if required && !twelveFactorMode {
		_ = c.MarkFlagRequired(sw.name)
	}
}

// getCliFlag fetches the value of name from the environment, when running in twelveFactorMode,
// else read the Main config file to find it.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string, fnGetConfig func(key string, out interface{}) error) cliFlag {
	s, ok := (*f)[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	if twelveFactorMode { // if we should read env vars...
		if err := helper.ReadValueFromEnv(helper.GetFlagEnvVarName(name), &s.val); err != nil || s.val == "" {
			s.val = defaultValue
		}
	} else { // else check the config file or apply default...
		err := fnGetConfig(s.name, &s.val)
		if err != nil || s.val == "" { // if there was no key found or its value is unusable...
			s.val = defaultValue
		}
	}
	return s
}

func mustSetFlag(f *pflag.FlagSet, name string, val string) {
	if err := f.Set(name, val); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// getEntityArgFunc returns a func that cobra uses to validate that we have exactly one entity name,
// which it saves into entity.
func getEntityArgFunc(entity *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			return errors.New("requires a single <entity> name, see 'fp catalog list'")
		}
		*entity = strings.TrimSpace(args[0])
		return nil
	}
}
