package config

import (
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var fieldPipeHomeDir string
var Main *File
var Credentials *File

func init() {
	Main = NewConfigFileWithDir(mustGetConfigHomeDir(), MainFileFullName)
	Credentials = NewConfigFileWithDir(mustGetConfigHomeDir(), CredentialsFileFullName)
}

const (
	MainDir                   = ".fieldpipe"
	HomeDirEnvVar             = "FP_HOME" // overrides ~/.fieldpipe
	MainFileNamePrefix        = "config"
	MainFileNameExt           = "yaml"
	MainFileFullName          = MainFileNamePrefix + "." + MainFileNameExt
	CredentialsFileNamePrefix = "credentials"
	CredentialsFileNameExt    = "yaml"
	CredentialsFileFullName   = CredentialsFileNamePrefix + "." + CredentialsFileNameExt
	CredentialsKeyTenants     = "tenants"
	CredentialsKeyWarehouse   = "warehouse"
	CredentialsKeyAPIBaseURL  = "apiBaseUrl"
)

// FileNotFoundError denotes failing to find configuration file.
type FileNotFoundError struct {
	name string
}

// Error returns the formatted configuration error.
func (f FileNotFoundError) Error() string {
	return fmt.Sprintf("config file %q not found", f.name)
}

type KeyNotFoundError struct {
	configFile string
	key        string
}

func (k KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in config file %q", k.key, k.configFile)
}

// IsKeyNotFound reports whether err was caused by a missing key.
func IsKeyNotFound(err error) bool {
	var k KeyNotFoundError
	return errors.As(err, &k)
}

// File is a key-value store persisted as encrypted YAML.
type File struct {
	Dirname      string
	FileName     string
	FilePrefix   string
	FileExt      string
	FullPath     string
	data         map[string]interface{}
	dataIsLoaded bool
	f            *EncryptedFile
	mu           sync.Mutex
}

func NewConfigFileWithDir(dirName string, filename string) *File {
	c := &File{Dirname: dirName, FileName: filename}
	c.FullPath = path.Join(dirName, filename)
	c.FileExt = strings.TrimLeft(path.Ext(filename), ".")
	c.FilePrefix = strings.TrimSuffix(c.FileName, "."+c.FileExt)
	c.data = make(map[string]interface{})
	c.f = NewEncryptedFileWithDir(dirName, filename)
	return c
}

// Get will fetch the key from the config File into variable, out, using mapstructure to decode
// nested values into structs.
// Return a KeyNotFoundError if we can't find the key.
func (c *File) Get(key string, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr {
		return errors.New("out must be a pointer")
	}
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	c.mu.Lock()
	d, ok := c.data[key]
	c.mu.Unlock()
	if !ok { // if the key was not found...
		return KeyNotFoundError{c.FullPath, key}
	}
	if err := mapstructure.Decode(d, out); err != nil {
		return errors.Wrapf(err, "error decoding key %v from config file %v", key, c.FullPath)
	}
	return nil
}

func (c *File) Set(key string, val interface{}) error {
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = val
	return c.save(key)
}

func (c *File) Delete(key string) error {
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, keyExists := c.data[key]; keyExists {
		delete(c.data, key)
	} else {
		return KeyNotFoundError{c.FullPath, key}
	}
	return c.save(key)
}

// GetAllKeys returns the sorted keys found in the file.
func (c *File) GetAllKeys() ([]string, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	retval := make([]string, 0, len(c.data))
	for k := range c.data {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval, nil
}

// ensureLoaded reads the file once; a missing file is treated as empty.
func (c *File) ensureLoaded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataIsLoaded {
		return nil
	}
	b, err := c.f.Get()
	if err != nil {
		var fnf FileNotFoundError
		if errors.As(err, &fnf) { // if the file is missing we create it on the first Set...
			c.dataIsLoaded = true
			return nil
		}
		return err
	}
	if err = yaml.Unmarshal(b, &c.data); err != nil {
		return errors.Wrapf(err, "error reading config file %v", c.FullPath)
	}
	if c.data == nil {
		c.data = make(map[string]interface{})
	}
	c.dataIsLoaded = true
	return nil
}

func (c *File) save(key string) error {
	b, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("error marshalling data while writing key %v to config file %v: %v", key, c.FullPath, err)
	}
	return c.f.Set(b)
}
