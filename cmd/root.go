package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Default values may be set at compile time.
	version          = "0.1.0"
	buildDate        = "2025-06-01T00:00+0000"
	stackDumpOnPanic bool
	envFile          string
)

var rootCmd = &cobra.Command{
	Use: "fp",
	Long: `
FieldPipe extracts entities from every FieldRoutes office, lands the raw JSON in Snowflake
and merges it into typed, de-duplicated staging tables. Run it from a scheduler using the
"run" commands, or start an HTTP server to trigger runs remotely.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(envFile)
	},
}

func init() {
	// General setup.
	cobra.EnableCommandSorting = false
	// Global flags.
	rootCmd.PersistentFlags().BoolVar(&stackDumpOnPanic, "print-stack", false, "Print a stack dump if there is a panic")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File of environment variables to load when it exists")
	_ = rootCmd.PersistentFlags().MarkHidden("print-stack")
}

// loadEnvFile reads name into the environment; a missing file is not an error.
// Variables already set take precedence.
func loadEnvFile(name string) error {
	if name == "" {
		return nil
	}
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(name)
}

// signalContext is cancelled on SIGINT or SIGTERM so in-flight runs stop cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if twelveFactorMode { // if we are running based on environment variables...
		_ = loadEnvFile(".env")
		if lambdaMode { // if we should handle lambda execution...
			lambda.Start(func() error { return execute12FactorMode(twelveFactorActions) })
		} else {
			if err := execute12FactorMode(twelveFactorActions); err != nil {
				// execute12FactorMode logs the error.
				os.Exit(1)
			}
		}
	} else { // else we're using CLI args and flags via Cobra...
		if err := rootCmd.Execute(); err != nil {
			// Execute() prints the error.
			os.Exit(1)
		}
	}
}
