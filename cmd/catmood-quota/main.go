// catmood-quota inspects and resets the persisted free-analysis counters.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/whiskerworks/catmood/usage"
)

type Config struct {
	QuotaDB    string
	DailyLimit int
	Reset      bool
}

func (c Config) Validate() error {
	if c.QuotaDB == "" {
		return errors.New("missing -quota-db")
	}
	if c.DailyLimit <= 0 {
		return errors.New("daily-limit must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		QuotaDB:    "catmood_usage.db",
		DailyLimit: 3,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.QuotaDB, "quota-db", cfg.QuotaDB, "SQLite file holding the quota counters")
	fs.IntVar(&cfg.DailyLimit, "daily-limit", cfg.DailyLimit, "Free analyses per calendar day")
	fs.BoolVar(&cfg.Reset, "reset", cfg.Reset, "Zero the counters")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	store, err := usage.OpenSQLiteStore(cfg.QuotaDB)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer store.Close()

	meter := usage.NewMeter(store, cfg.DailyLimit)

	if cfg.Reset {
		if err := meter.Reset(); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	snap, err := meter.Snapshot()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	remaining, err := meter.RemainingFreeCount()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "consumed=%d reserved=%d remaining=%d last_reset=%s\n",
		snap.Consumed, snap.Reserved, remaining, snap.LastReset.Format("2006-01-02"))
}
