package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// LoadOptions names the files Load reads. Empty fields are skipped,
// except EnvFile which defaults to ".env" in the working directory.
type LoadOptions struct {
	Path    string // TOML file; must exist when set
	EnvFile string
}

// Load builds a validated Config from defaults, the TOML file and the
// environment.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", opts.Path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", opts.Path, err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Variables already set in the environment win over the file.
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides cfg from DEPRANK_<SECTION>_<FIELD> variables plus
// the conventional GITHUB_TOKEN and CHAIN_* names.
func applyEnv(c *Config) error {
	var firstErr error
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("env %s: %w", key, err)
		}
	}
	str := func(target *string, keys ...string) {
		for _, k := range keys {
			if v, ok := os.LookupEnv(k); ok && v != "" {
				*target = strings.TrimSpace(v)
				return
			}
		}
	}
	integer := func(key string, target *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*target = n
		}
	}
	int64v := func(key string, target *int64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				fail(key, err)
				return
			}
			*target = n
		}
	}
	float := func(key string, target *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				fail(key, err)
				return
			}
			*target = f
		}
	}
	boolean := func(key string, target *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*target = b
		}
	}
	duration := func(key string, target *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*target = d
		}
	}

	str(&c.Server.Addr, "DEPRANK_SERVER_ADDR")

	str(&c.Cache.Dir, "DEPRANK_CACHE_DIR")
	duration("DEPRANK_CACHE_TTL", &c.Cache.TTL)
	str(&c.Cache.RedisURL, "DEPRANK_CACHE_REDIS_URL", "DEPRANK_REDIS_URL")

	str(&c.Store.Driver, "DEPRANK_STORE_DRIVER")
	str(&c.Store.MongoURI, "DEPRANK_STORE_MONGO_URI", "MONGO_URI")
	str(&c.Store.Database, "DEPRANK_STORE_DATABASE")

	str(&c.Lease.RedisURL, "DEPRANK_LEASE_REDIS_URL", "DEPRANK_REDIS_URL")
	duration("DEPRANK_LEASE_TTL", &c.Lease.TTL)

	str(&c.GitHub.Token, "DEPRANK_GITHUB_TOKEN", "GITHUB_TOKEN")

	str(&c.Chain.RPCURL, "DEPRANK_CHAIN_RPC_URL", "CHAIN_RPC_URL")
	str(&c.Chain.PrivateKey, "DEPRANK_CHAIN_PRIVATE_KEY", "CHAIN_PRIVATE_KEY")
	str(&c.Chain.AccountAddress, "DEPRANK_CHAIN_ACCOUNT_ADDRESS", "CHAIN_ACCOUNT_ADDRESS")
	str(&c.Chain.ChainID, "DEPRANK_CHAIN_ID", "CHAIN_ID")
	str(&c.Chain.Contracts.Allocation, "CHAIN_ALLOCATION_CONTRACT")
	str(&c.Chain.Contracts.Inquire, "CHAIN_INQUIRE_CONTRACT")
	str(&c.Chain.Contracts.Receipt, "CHAIN_RECEIPT_CONTRACT")
	str(&c.Chain.Contracts.Sign, "CHAIN_SIGN_CONTRACT")
	str(&c.Chain.Contracts.Workflow, "CHAIN_WORKFLOW_CONTRACT")
	duration("DEPRANK_CHAIN_CONFIRM_TIMEOUT", &c.Chain.ConfirmTimeout)
	duration("DEPRANK_CHAIN_POLL_INTERVAL", &c.Chain.PollInterval)

	p := &c.Pipeline
	integer("DEPRANK_PIPELINE_MAX_DEPTH", &p.MaxDepth)
	integer("DEPRANK_PIPELINE_MAX_NODES", &p.MaxNodes)
	float("DEPRANK_PIPELINE_DAMPING", &p.Damping)
	float("DEPRANK_PIPELINE_TOLERANCE", &p.Tolerance)
	integer("DEPRANK_PIPELINE_MAX_ITERATIONS", &p.MaxIterations)
	int64v("DEPRANK_PIPELINE_BUDGET", &p.Budget)
	float("DEPRANK_PIPELINE_PINNED_WEIGHT", &p.EdgeWeights.Pinned)
	float("DEPRANK_PIPELINE_RANGE_WEIGHT", &p.EdgeWeights.Range)
	integer("DEPRANK_PIPELINE_HISTORY_COMMITS", &p.HistoryCommits)
	boolean("DEPRANK_PIPELINE_COUNT_LINES", &p.CountLines)
	duration("DEPRANK_PIPELINE_FETCH_TIMEOUT", &p.FetchTimeout)
	duration("DEPRANK_PIPELINE_SETTLE_TIMEOUT", &p.SettleTimeout)
	integer("DEPRANK_PIPELINE_MAX_RETRIES", &p.MaxRetries)
	integer("DEPRANK_PIPELINE_NETWORK_WORKERS", &p.NetworkWorkers)
	integer("DEPRANK_PIPELINE_CPU_WORKERS", &p.CPUWorkers)

	return firstErr
}
