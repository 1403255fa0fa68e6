// Package config centralizes gamestats configuration. Every tunable is a
// command-line flag whose default is seeded from an environment variable, so
// `--help` lists all knobs and a deployment can configure the loader purely
// through its environment (or a .env file).
//
// For tests, prefer LoadFromArgs to keep them hermetic:
//
//	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
//	getenv := func(k string) string { return testEnv[k] }
//	cfg, err := config.LoadFromArgs(fs, getenv, []string{"--driver=sqlite"})
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Environment variables read by Bind.
const (
	EnvDriver         = "GAMESTATS_DB_DRIVER"
	EnvDSN            = "GAMESTATS_DSN"
	EnvDBUser         = "GAMESTATS_DB_USER"
	EnvPassword       = "GAMESTATS_APPUSER_PWD"
	EnvDBHost         = "GAMESTATS_DB_HOST"
	EnvDBPort         = "GAMESTATS_DB_PORT"
	EnvDBName         = "GAMESTATS_DB_NAME"
	EnvSchema         = "GAMESTATS_SCHEMA"
	EnvJunkShortfall  = "GAMESTATS_JUNK_SHORTFALL"
	EnvMetricsBackend = "METRICS_BACKEND"
	EnvPushgatewayURL = "PUSHGATEWAY_URL"
	EnvStatsdAddr     = "DD_DOGSTATSD_ADDR"
)

// DefaultEnvFile is read when present; a missing file is not an error.
const DefaultEnvFile = ".env"

// UseDescriptorShortfall leaves the junk shortfall to the schema descriptor.
const UseDescriptorShortfall = -1

// Config holds all process configuration derived from flags and
// environment variables.
type Config struct {
	// DB describes the target database. DSN wins when set; otherwise one is
	// built from the discrete parts for Driver.
	Driver     string
	DSN        string
	DBUser     string
	DBPassword string // environment only; never a flag
	DBHost     string
	DBPort     string // empty selects the driver's default port
	DBName     string

	// Loading.
	SchemaPath    string // empty uses the embedded descriptor
	JunkShortfall int
	Sheet         string

	// Metrics.
	MetricsBackend string // none, pushgateway or datadog
	PushgatewayURL string
	StatsdAddr     string

	EnvFile string
}

// Bind defines every configuration flag on fs, seeding each default from
// getenv, and returns the Config the flags write into. Values are final
// once fs has been parsed.
//
// Precedence:
//  1. Environment values seed each flag's default.
//  2. Explicit flags override the seeded defaults.
func Bind(fs *pflag.FlagSet, getenv func(string) string) *Config {
	cfg := &Config{}

	envOrDefault := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	intEnvOrDefault := func(k string, d int) int {
		if v := getenv(k); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
		return d
	}

	fs.StringVar(&cfg.Driver, "driver", envOrDefault(EnvDriver, "mysql"), "Database driver: mysql, postgres, sqlite or mssql")
	fs.StringVar(&cfg.DSN, "dsn", getenv(EnvDSN), "Full driver DSN (overrides the --db-* parts)")
	fs.StringVar(&cfg.DBUser, "db-user", envOrDefault(EnvDBUser, "appuser"), "Database user")
	fs.StringVar(&cfg.DBHost, "db-host", envOrDefault(EnvDBHost, "localhost"), "Database host")
	fs.StringVar(&cfg.DBPort, "db-port", getenv(EnvDBPort), "Database port (default depends on driver)")
	fs.StringVar(&cfg.DBName, "db-name", envOrDefault(EnvDBName, "gamestats"), "Database name (file name stem for sqlite)")
	cfg.DBPassword = getenv(EnvPassword)

	fs.StringVar(&cfg.SchemaPath, "schema", getenv(EnvSchema), "Schema descriptor YAML (default: embedded)")
	fs.IntVar(&cfg.JunkShortfall, "junk-shortfall", intEnvOrDefault(EnvJunkShortfall, UseDescriptorShortfall),
		"Rows with more than this many fields fewer than the table has columns end a section (-1: descriptor value)")
	fs.StringVar(&cfg.Sheet, "sheet", "", "Workbook sheet to read for .xlsx exports (default: first sheet)")

	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", envOrDefault(EnvMetricsBackend, "none"), "Metrics backend: none, pushgateway or datadog")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", envOrDefault(EnvPushgatewayURL, "http://localhost:9091"), "Prometheus Pushgateway URL")
	fs.StringVar(&cfg.StatsdAddr, "statsd-addr", envOrDefault(EnvStatsdAddr, "127.0.0.1:8125"), "DogStatsD address")

	fs.StringVar(&cfg.EnvFile, "env-file", DefaultEnvFile, "Environment file loaded before flags are read")
	return cfg
}

// LoadFromArgs binds flags on fs and parses args.
func LoadFromArgs(fs *pflag.FlagSet, getenv func(string) string, args []string) (*Config, error) {
	cfg := Bind(fs, getenv)
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnvFileFromArgs extracts --env-file from args without defining or
// validating any other flag, so the file can be read before the real flags
// are seeded from the environment.
func EnvFileFromArgs(args []string) string {
	fs := pflag.NewFlagSet("env-file", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	fs.SetOutput(io.Discard)
	path := fs.String("env-file", DefaultEnvFile, "")
	_ = fs.Parse(args)
	return *path
}

// EnvWithFile returns a getenv that prefers the process environment and
// falls back to the values in path. A missing file yields base unchanged
// (an explicitly named file that is missing is an error).
func EnvWithFile(base func(string) string, path string, explicit bool) (func(string) string, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return base, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return func(k string) string {
		if v := base(k); v != "" {
			return v
		}
		return vals[k]
	}, nil
}

// DefaultPort returns the conventional port for driver, or "".
func DefaultPort(driver string) string {
	switch driver {
	case "mysql":
		return "3306"
	case "postgres":
		return "5432"
	case "mssql":
		return "1433"
	default:
		return ""
	}
}

// ResolveDSN returns cfg.DSN when set, or builds one for cfg.Driver.
func (c *Config) ResolveDSN() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	port := c.DBPort
	if port == "" {
		port = DefaultPort(c.Driver)
	}
	addr := net.JoinHostPort(c.DBHost, port)

	switch c.Driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.DBUser
		mc.Passwd = c.DBPassword
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = c.DBName
		return mc.FormatDSN(), nil
	case "postgres":
		u := url.URL{Scheme: "postgres", User: url.UserPassword(c.DBUser, c.DBPassword), Host: addr, Path: "/" + c.DBName}
		return u.String(), nil
	case "mssql":
		u := url.URL{Scheme: "sqlserver", User: url.UserPassword(c.DBUser, c.DBPassword), Host: addr}
		u.RawQuery = url.Values{"database": {c.DBName}}.Encode()
		return u.String(), nil
	case "sqlite":
		name := c.DBName
		if !strings.HasSuffix(name, ".db") && name != ":memory:" {
			name += ".db"
		}
		return name, nil
	default:
		return "", fmt.Errorf("config: cannot build a DSN for driver %q", c.Driver)
	}
}
