package rdbms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/relloyd/fieldpipe/config"
	"github.com/relloyd/fieldpipe/constants"
	h "github.com/relloyd/fieldpipe/helper"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/rdbms/shared"
	sf "github.com/snowflakedb/gosnowflake"
)

var DefaultSnowflakeConnectionKeyNames = struct {
	Account   string
	User      string
	Password  string
	Warehouse string
	Database  string
	Schema    string
	Role      string
}{
	Account:   "account",
	User:      "user",
	Password:  "password",
	Warehouse: "warehouse",
	Database:  "database",
	Schema:    "schema",
	Role:      "role",
}

var reSnowflakeScheme = regexp.MustCompile("^snowflake://")

// SnowflakeConnectionDetails is the single warehouse login shared by the raw and staging layers.
type SnowflakeConnectionDetails struct {
	Account   string `errorTxt:"Snowflake account" mandatory:"yes" mapstructure:"account"`
	User      string `errorTxt:"Snowflake username" mandatory:"yes" mapstructure:"user"`
	Password  string `errorTxt:"Snowflake password" mandatory:"yes" mapstructure:"password"`
	Warehouse string `errorTxt:"Snowflake warehouse" mapstructure:"warehouse"`
	Database  string `errorTxt:"Snowflake database" mapstructure:"database"`
	Schema    string `errorTxt:"Snowflake schema" mapstructure:"schema"`
	Role      string `errorTxt:"Snowflake role name" mapstructure:"role"`
}

func (d SnowflakeConnectionDetails) String() string {
	return fmt.Sprintf("%v:%v@%v/%v?schema=%v&warehouse=%v&role=%v",
		d.User,
		"xxxxxxx",
		d.Account,
		d.Database,
		d.Schema,
		d.Warehouse,
		d.Role,
	)
}

// Validate checks the mandatory fields are populated.
func (d SnowflakeConnectionDetails) Validate() error {
	return h.ValidateStructIsPopulated(d)
}

// ToMap renders d for storage in the credentials file.
func (d SnowflakeConnectionDetails) ToMap() map[string]string {
	k := DefaultSnowflakeConnectionKeyNames
	return map[string]string{
		k.Account:   d.Account,
		k.User:      d.User,
		k.Password:  d.Password,
		k.Warehouse: d.Warehouse,
		k.Database:  d.Database,
		k.Schema:    d.Schema,
		k.Role:      d.Role,
	}
}

// LoadSnowflakeConnectionDetails reads the warehouse login from the credentials file, if supplied,
// then fills any gaps from SNOWFLAKE_* environment variables and finally from built-in defaults.
func LoadSnowflakeConnectionDetails(getenv func(string) string, file *config.File) (SnowflakeConnectionDetails, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	d := SnowflakeConnectionDetails{}
	if file != nil {
		if err := file.Get(config.CredentialsKeyWarehouse, &d); err != nil && !config.IsKeyNotFound(err) {
			return d, err
		}
	}
	fill := func(v *string, key string, defaultValue string) {
		if *v == "" {
			*v = strings.TrimSpace(getenv(h.GetSnowflakeEnvVarName(key)))
		}
		if *v == "" {
			*v = defaultValue
		}
	}
	k := DefaultSnowflakeConnectionKeyNames
	fill(&d.Account, k.Account, "")
	fill(&d.User, k.User, "")
	fill(&d.Password, k.Password, "")
	fill(&d.Warehouse, k.Warehouse, constants.DefaultWarehouse)
	fill(&d.Database, k.Database, constants.DefaultRawDatabase)
	fill(&d.Schema, k.Schema, constants.DefaultSchema)
	fill(&d.Role, k.Role, "")
	return d, d.Validate()
}

// NewSnowflakeConnection opens and pings the Snowflake database described by d.
func NewSnowflakeConnection(ctx context.Context, log logger.Logger, d SnowflakeConnectionDetails) (shared.Connector, error) {
	dsn, err := SnowflakeGetDSN(&d)
	if err != nil {
		return nil, err
	}
	conn := &shared.HpConnection{DbType: constants.ConnectionTypeSnowflake}
	conn.DbSql, err = sql.Open("snowflake", strings.TrimPrefix(dsn, "snowflake://"))
	if err != nil {
		return nil, err
	}
	if err = conn.DbSql.PingContext(ctx); err != nil {
		_ = conn.DbSql.Close()
		return nil, fmt.Errorf("unable to connect to Snowflake %v: %w", d, err)
	}
	log.Info("Successful database connection to Snowflake.")
	return conn, nil
}

// SnowflakeGetDSN constructs a DSN based on SnowflakeConnectionDetails.
// The prefix 'snowflake://' is added to the DSN.
func SnowflakeGetDSN(c *SnowflakeConnectionDetails) (string, error) {
	cfg := &sf.Config{
		Account:   c.Account,
		Database:  c.Database,
		Schema:    c.Schema,
		User:      c.User,
		Password:  c.Password,
		Warehouse: c.Warehouse,
		Role:      c.Role,
	}
	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", err
	}
	if !reSnowflakeScheme.MatchString(dsn) {
		dsn = fmt.Sprintf("snowflake://%v", dsn)
	}
	return dsn, nil
}

// SnowflakeParseDSN converts a Snowflake DSN into native connection details.
// The prefix 'snowflake://' is required.
func SnowflakeParseDSN(d string) (*SnowflakeConnectionDetails, error) {
	if !reSnowflakeScheme.MatchString(d) {
		return nil, errors.New("unsupported Snowflake DSN format")
	}
	cfg, err := sf.ParseDSN(strings.TrimPrefix(d, "snowflake://"))
	if err != nil {
		return nil, err
	}
	retval := &SnowflakeConnectionDetails{
		User:      cfg.User,
		Password:  cfg.Password,
		Schema:    cfg.Schema,
		Database:  cfg.Database,
		Account:   cfg.Account,
		Role:      cfg.Role,
		Warehouse: cfg.Warehouse,
	}
	if cfg.Region != "" && !strings.Contains(retval.Account, ".") {
		retval.Account = fmt.Sprintf("%v.%v", retval.Account, cfg.Region)
	}
	return retval, nil
}
