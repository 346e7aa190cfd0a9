package config

import (
	"fmt"
	"os"
	"path"

	"github.com/mitchellh/go-homedir"
)

// mustGetConfigHomeDir returns the full path to the directory that stores all config files.
// FP_HOME wins over ~/.fieldpipe.
func mustGetConfigHomeDir() string {
	if fieldPipeHomeDir == "" {
		if d := os.Getenv(HomeDirEnvVar); d != "" {
			fieldPipeHomeDir = d
			return fieldPipeHomeDir
		}
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fieldPipeHomeDir = path.Join(home, MainDir)
	}
	return fieldPipeHomeDir
}

// makeDir will make the given directory if it does not already exist.
// An error is returned if there is a problem creating the dir.
func makeDir(dir string) error {
	_, err := os.Stat(dir)
	if os.IsNotExist(err) { // if it doesn't exist...
		if err = os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("error creating directory %v", dir)
		}
	} else if err != nil {
		return err
	}
	return nil
}
