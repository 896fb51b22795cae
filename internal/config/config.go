package config

import (
	"fmt"
	"net/url"
	"os/user"
	"path/filepath"

	"github.com/spf13/viper"
)

// Todo status values enforced by the schema CHECK constraint.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Config holds the environment-driven settings for the bootstrap tool.
// Every field has a literal default so the tool works with no environment
// at all.
type Config struct {
	DBName     string // DB_NAME
	DBUser     string // DB_USER
	DBPassword string // DB_PASSWORD
	DBHost     string // DB_HOST
	DBPort     int    // DB_PORT

	DataDir   string // PGDATA
	BinDir    string // PG_BIN, empty means auto-detect
	Superuser string // PG_SUPERUSER, defaults to the OS user that runs initdb

	SchemaFile     string // SCHEMA_FILE
	SeedFile       string // SEED_FILE
	ConnectionFile string // CONNECTION_FILE
	EnvFile        string // ENV_FILE
	LogFile        string // PG_LOG_FILE, defaults to PGDATA/server.log
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DB_NAME", "todoapp")
	v.SetDefault("DB_USER", "todouser")
	v.SetDefault("DB_PASSWORD", "todopass")
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("PGDATA", "./pgdata")
	v.SetDefault("PG_BIN", "")
	v.SetDefault("PG_SUPERUSER", currentUsername())
	v.SetDefault("SCHEMA_FILE", "./schema.sql")
	v.SetDefault("SEED_FILE", "./seed.sql")
	v.SetDefault("CONNECTION_FILE", "./db_connection.txt")
	v.SetDefault("ENV_FILE", "./postgres.env")
	v.SetDefault("PG_LOG_FILE", "")

	cfg := &Config{
		DBName:         v.GetString("DB_NAME"),
		DBUser:         v.GetString("DB_USER"),
		DBPassword:     v.GetString("DB_PASSWORD"),
		DBHost:         v.GetString("DB_HOST"),
		DBPort:         v.GetInt("DB_PORT"),
		DataDir:        v.GetString("PGDATA"),
		BinDir:         v.GetString("PG_BIN"),
		Superuser:      v.GetString("PG_SUPERUSER"),
		SchemaFile:     v.GetString("SCHEMA_FILE"),
		SeedFile:       v.GetString("SEED_FILE"),
		ConnectionFile: v.GetString("CONNECTION_FILE"),
		EnvFile:        v.GetString("ENV_FILE"),
		LogFile:        v.GetString("PG_LOG_FILE"),
	}

	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "server.log")
	}

	return cfg
}

// URL returns the application connection URL, the one written to
// db_connection.txt and exported as POSTGRES_URL.
func (c *Config) URL() string {
	return c.connURL(url.UserPassword(c.DBUser, c.DBPassword), c.DBName)
}

// MaintenanceURL returns a superuser connection to the built-in postgres
// database, used for role and database provisioning.
func (c *Config) MaintenanceURL() string {
	return c.connURL(url.User(c.Superuser), "postgres")
}

// AdminURL returns a superuser connection to the application database, used
// for schema-level grants on pre-existing objects.
func (c *Config) AdminURL() string {
	return c.connURL(url.User(c.Superuser), c.DBName)
}

// connURL builds a connection URL via net/url so userinfo is
// percent-encoded per RFC 3986. QueryEscape is not equivalent there: it
// turns a space into "+", which drivers do not decode back.
func (c *Config) connURL(user *url.Userinfo, dbname string) string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     user,
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + dbname,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func currentUsername() string {
	u, err := user.Current()
	if err != nil {
		return "postgres"
	}
	return u.Username
}
