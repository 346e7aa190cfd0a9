package actions

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/config"
	"github.com/relloyd/fieldpipe/helper"
	"github.com/relloyd/fieldpipe/rdbms"
	"github.com/relloyd/fieldpipe/tenant"
)

type DefaultAddConfig struct {
	ConfigFile *config.File `errorTxt:"config-file" mandatory:"yes"`
	Key        string       `errorTxt:"key" mandatory:"yes"`
	Value      string       `errorTxt:"value" mandatory:"yes"`
	Force      bool
	Out        io.Writer
}

type DefaultRemoveConfig struct {
	ConfigFile *config.File `errorTxt:"config-file" mandatory:"yes"`
	Key        string       `errorTxt:"key" mandatory:"yes"`
	Out        io.Writer
}

// RunDefaultAdd adds key+value to the given config file.
// If cfg.Force is not set then it returns an error when the key exists.
func RunDefaultAdd(cfg *DefaultAddConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if cfg.ConfigFile == nil {
		return errors.New("please supply values for config-file")
	}
	var val string
	if err := cfg.ConfigFile.Get(cfg.Key, &val); err == nil && !cfg.Force { // if key exists and we're not allowed to overwrite...
		return fmt.Errorf("key %q exists, use force to update the value or remove it first", cfg.Key)
	} else if err != nil && !config.IsKeyNotFound(err) { // else there was an unexpected error...
		return err
	}
	if err := cfg.ConfigFile.Set(cfg.Key, cfg.Value); err != nil {
		return errors.Wrap(err, "error writing config file after adding")
	}
	_, _ = fmt.Fprintf(writerOrDiscard(cfg.Out), "Key %q added to %q\n", cfg.Key, cfg.ConfigFile.FullPath)
	return nil
}

// RunDefaultRemove removes a key from the given config file.
func RunDefaultRemove(cfg *DefaultRemoveConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	if cfg.ConfigFile == nil {
		return errors.New("please supply values for config-file")
	}
	if err := cfg.ConfigFile.Delete(cfg.Key); err != nil {
		return errors.Wrapf(err, "unable to delete key %q from config", cfg.Key)
	}
	_, _ = fmt.Fprintf(writerOrDiscard(cfg.Out), "Key %q removed\n", cfg.Key)
	return nil
}

// RunDefaultList prints every key=value in the given config file.
func RunDefaultList(file *config.File, out io.Writer) error {
	keys, err := file.GetAllKeys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		var val interface{}
		if err := file.Get(k, &val); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "%v=%v\n", k, val)
	}
	return nil
}

type TenantAddConfig struct {
	ConfigFile *config.File
	Tenant     tenant.Credentials
	Out        io.Writer
}

// RunTenantAdd saves tenant credentials to the credentials file, replacing a tenant with the same id.
func RunTenantAdd(cfg *TenantAddConfig) error {
	p := &tenant.FileProvider{File: cfg.ConfigFile}
	if err := p.AddTenant(cfg.Tenant); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(writerOrDiscard(cfg.Out), "Tenant %q saved to %q\n", cfg.Tenant.ID, cfg.ConfigFile.FullPath)
	return nil
}

// RunTenantRemove deletes the tenant with id from the credentials file.
func RunTenantRemove(file *config.File, id string, out io.Writer) error {
	p := &tenant.FileProvider{File: file}
	if err := p.RemoveTenant(id); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(writerOrDiscard(out), "Tenant %q removed\n", id)
	return nil
}

// RunTenantList prints the tenants that a pipeline run would use, secrets masked.
func RunTenantList(store *tenant.Store, out io.Writer) error {
	if store.Len() == 0 {
		_, err := fmt.Fprintln(out, "No tenants configured")
		return err
	}
	for _, t := range store.All() {
		if _, err := fmt.Fprintln(out, t.String()); err != nil {
			return err
		}
	}
	return nil
}

// RunWarehouseSet validates and saves the Snowflake login to the credentials file.
func RunWarehouseSet(file *config.File, d rdbms.SnowflakeConnectionDetails, out io.Writer) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := file.Set(config.CredentialsKeyWarehouse, d.ToMap()); err != nil {
		return errors.Wrap(err, "error saving warehouse credentials")
	}
	_, _ = fmt.Fprintf(writerOrDiscard(out), "Warehouse credentials saved to %q\n", file.FullPath)
	return nil
}

// RunWarehouseShow prints the effective warehouse login with the password masked.
func RunWarehouseShow(file *config.File, getenv func(string) string, out io.Writer) error {
	d, err := rdbms.LoadSnowflakeConnectionDetails(getenv, file)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, d.String())
	return err
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
