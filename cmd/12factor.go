package cmd

import (
	"fmt"
	"os"
	"strings"

	c "github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/helper"
	"github.com/relloyd/fieldpipe/logger"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set such that other init() functions that configure
// Cobra can do the job of processing all environment variables that would contain equivalent of the CLI flag
// structures used by the actions.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
func setupTwelveFactorMode() {
	mode := os.Getenv(envVarTwelveFactorMode)
	if mode != "" { // if variable for 12factor mode is set and we should read env vars to determine actions...
		twelveFactorMode = true
		lambdaMode = strings.ToLower(mode) == "lambda"
	} else { // else 12factor mode should be off...
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

const (
	envVarTwelveFactorMode = c.EnvVarPrefix + "_" + "12FACTOR_MODE"
	envVarCommand          = c.EnvVarPrefix + "_" + "COMMAND"
	envVarSubcommand       = c.EnvVarPrefix + "_" + "SUBCOMMAND"
	envVarEntity           = c.EnvVarPrefix + "_" + "ENTITY"
	envVarLogLevel         = c.EnvVarPrefix + "_" + "LOG_LEVEL"
	envVarStackDump        = c.EnvVarPrefix + "_" + "STACK_DUMP"
)

var (
	twelveFactorMode bool // true if os env var envVarTwelveFactorMode is set
	lambdaMode       bool // true if os env var envVarTwelveFactorMode is "lambda"
	twelveFactorVars = map[string]string{
		envVarCommand:    "",
		envVarSubcommand: "",
		envVarEntity:     "",
		envVarLogLevel:   "",
		envVarStackDump:  "",
		helper.GetSnowflakeEnvVarName("password"): "",
	}
	twelveFactorVarsSensitive = map[string]string{ // used to flag some of the above variables as being sensitive.
		helper.GetSnowflakeEnvVarName("password"): "",
	}
)

type twelveFactorAction struct {
	setupFunc  func(entity string)
	runnerFunc func() error
}

var twelveFactorActions = map[string]twelveFactorAction{
	c.ActionFuncsCommandRun + "-" + c.ActionFuncsSubCommandFull: {
		runnerFunc: runFull,
	},
	c.ActionFuncsCommandRun + "-" + c.ActionFuncsSubCommandIncr: {
		runnerFunc: runIncremental,
	},
	c.ActionFuncsCommandRun + "-" + c.ActionFuncsSubCommandEntity: {
		setupFunc:  func(entity string) { runOpts.entity = entity },
		runnerFunc: runEntity,
	},
	c.ActionFuncsCommandMerge + "-": {
		runnerFunc: runMerge,
	},
}

func execute12FactorMode(acts map[string]twelveFactorAction) (err error) {
	logLevel := helper.ReadValueFromEnvWithDefault(envVarLogLevel, "warn")
	log := logger.NewLogger(c.ServiceName, logLevel, stackDumpOnPanic)
	log.Info("FieldPipe is running in 12 Factor mode...")
	for k := range twelveFactorVars { // for each env variable that we need...
		twelveFactorVars[k] = os.Getenv(k)
		if _, sensitive := twelveFactorVarsSensitive[k]; !sensitive {
			log.Debug(k, "=", twelveFactorVars[k])
		} else {
			log.Debug(k, "=", "<obfuscated>")
		}
	}
	// Use command and subcommand to fetch the appropriate action.
	action := fmt.Sprintf("%v-%v", strings.ToLower(twelveFactorVars[envVarCommand]), strings.ToLower(twelveFactorVars[envVarSubcommand]))
	a, ok := acts[action]
	if !ok {
		err = fmt.Errorf("invalid combination of command (%v) and subcommand (%v)", twelveFactorVars[envVarCommand], twelveFactorVars[envVarSubcommand])
		log.Error(err.Error())
		return
	}
	if a.setupFunc != nil {
		a.setupFunc(strings.TrimSpace(twelveFactorVars[envVarEntity]))
	}
	if err = a.runnerFunc(); err != nil {
		log.Error("Error: ", err)
	}
	return err
}
