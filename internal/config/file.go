package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"whopays/internal/core"
)

// fileConfig mirrors the TOML layout. Pointers distinguish "unset" from
// zero values so only keys present in the file override defaults.
type fileConfig struct {
	Server struct {
		Host            *string   `toml:"host"`
		Port            *int      `toml:"port"`
		CORSOrigins     []string  `toml:"cors_origins"`
		RateLimitRPM    *int      `toml:"rate_limit_rpm"`
		RateLimitBurst  *int      `toml:"rate_limit_burst"`
		StateCacheTTL   *duration `toml:"state_cache_ttl"`
		ShutdownTimeout *duration `toml:"shutdown_timeout"`
	} `toml:"server"`

	Storage struct {
		Backend      *string `toml:"backend"`
		DataDir      *string `toml:"data_dir"`
		PricesFile   *string `toml:"prices_file"`
		BalancesFile *string `toml:"balances_file"`
		HistoryFile  *string `toml:"history_file"`
		SQLitePath   *string `toml:"sqlite_path"`
	} `toml:"storage"`

	Ledger struct {
		DefaultTie   *string        `toml:"default_tie"`
		SeedDefaults *bool          `toml:"seed_defaults"`
		SeedPrices   map[string]any `toml:"seed_prices"`
		RandomSeed   *int64         `toml:"random_seed"`
	} `toml:"ledger"`

	AMQP struct {
		URL      *string `toml:"url"`
		Exchange *string `toml:"exchange"`
		Queue    *string `toml:"queue"`
	} `toml:"amqp"`

	Sheets struct {
		SpreadsheetID      *string `toml:"spreadsheet_id"`
		SheetName          *string `toml:"sheet_name"`
		ServiceAccountFile *string `toml:"service_account_file"`
		OAuthClientFile    *string `toml:"oauth_client_file"`
		OAuthTokenFile     *string `toml:"oauth_token_file"`
	} `toml:"sheets"`

	Worker struct {
		Backfill *bool `toml:"backfill"`
	} `toml:"worker"`

	Log struct {
		Level *string `toml:"level"`
	} `toml:"log"`
}

// duration decodes TOML strings such as "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown keys %v", path, undecoded)
	}

	setString(&c.Host, fc.Server.Host)
	if fc.Server.Port != nil {
		c.Port = fmt.Sprint(*fc.Server.Port)
	}
	if len(fc.Server.CORSOrigins) > 0 {
		c.CORSOrigins = fc.Server.CORSOrigins
	}
	setInt(&c.RateLimitRPM, fc.Server.RateLimitRPM)
	setInt(&c.RateLimitBurst, fc.Server.RateLimitBurst)
	if fc.Server.StateCacheTTL != nil {
		c.StateCacheTTL = fc.Server.StateCacheTTL.Duration
	}
	if fc.Server.ShutdownTimeout != nil {
		c.ShutdownTimeout = fc.Server.ShutdownTimeout.Duration
	}

	setString(&c.DataBackend, fc.Storage.Backend)
	setString(&c.DataDir, fc.Storage.DataDir)
	setString(&c.PricesFile, fc.Storage.PricesFile)
	setString(&c.BalancesFile, fc.Storage.BalancesFile)
	setString(&c.HistoryFile, fc.Storage.HistoryFile)
	setString(&c.SQLiteDBPath, fc.Storage.SQLitePath)

	setString(&c.DefaultTie, fc.Ledger.DefaultTie)
	if fc.Ledger.SeedDefaults != nil {
		c.SeedDefaults = *fc.Ledger.SeedDefaults
	}
	if fc.Ledger.RandomSeed != nil {
		c.RandomSeed = *fc.Ledger.RandomSeed
	}
	if fc.Ledger.SeedPrices != nil {
		seed := make(core.Amounts, len(fc.Ledger.SeedPrices))
		for name, v := range fc.Ledger.SeedPrices {
			d, err := core.ToDecimal(v)
			if err != nil {
				return fmt.Errorf("config file %s: seed price for %q: %w", path, name, err)
			}
			seed[name] = d
		}
		c.SeedPrices = seed
	}

	setString(&c.AMQPURL, fc.AMQP.URL)
	setString(&c.AMQPExchange, fc.AMQP.Exchange)
	setString(&c.AMQPQueue, fc.AMQP.Queue)

	setString(&c.GoogleSpreadsheetID, fc.Sheets.SpreadsheetID)
	setString(&c.GoogleSheetName, fc.Sheets.SheetName)
	setString(&c.GoogleServiceAccountFile, fc.Sheets.ServiceAccountFile)
	setString(&c.GoogleOAuthClientFile, fc.Sheets.OAuthClientFile)
	setString(&c.GoogleOAuthTokenFile, fc.Sheets.OAuthTokenFile)

	if fc.Worker.Backfill != nil {
		c.WorkerBackfill = *fc.Worker.Backfill
	}
	setString(&c.LogLevel, fc.Log.Level)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
