package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// LoadEnvFile loads the first .env file found among paths into the process
// environment. Already-set variables are kept. A missing file is not an error.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		return godotenv.Load(p)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the config.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("RUNZERO_BASE_URL", &c.Console.BaseURL)
	str("RUNZERO_EXPORT_TOKEN", &c.Console.ExportToken)
	str("RUNZERO_ORG_TOKEN", &c.Console.OrgToken)
	str("RUNZERO_ACCOUNT_TOKEN", &c.Console.AccountToken)
	str("RUNZERO_CLIENT_ID", &c.Console.ClientID)
	str("RUNZERO_CLIENT_SECRET", &c.Console.ClientSecret)
	str("RUNZERO_SITE_ID", &c.Console.SiteID)
	str("SAVE_PATH", &c.Output.Path)
	str("TIME", &c.Defaults.TimeRange)
	num("TASK_NO", &c.Defaults.TaskCount)
	str("TARGETS", &c.Defaults.TargetsFile)
	str("NESSUS_DIR", &c.Import.Dir)
	str("CONSOLE_SOURCE_URL", &c.Sync.SourceURL)
	str("SOURCE_ORG_TOKEN", &c.Sync.SourceToken)
	str("SNMP_COMMUNITY", &c.SNMP.Community)
	str("INFLUX_URL", &c.Influx.URL)
	str("INFLUX_TOKEN", &c.Influx.Token)
	str("INFLUX_ORG", &c.Influx.Org)
	str("INFLUX_BUCKET", &c.Influx.Bucket)
	str("NVD_API_URL", &c.NVD.URL)
	str("NVD_API_KEY", &c.NVD.APIKey)
	str("SNOW_BASE_URL", &c.Snow.BaseURL)
	str("SNOW_USERNAME", &c.Snow.Username)
	str("SNOW_PASSWORD", &c.Snow.Password)
	str("SNOW_CUSTOMER_ID", &c.Snow.CustomerID)
	str("R0_LOG_LEVEL", &c.Logging.Level)
}
