// Package config assembles the process configuration of deprank.
//
// A [Config] is built once at startup and passed by value into the engine,
// the API server and the CLI. Sources, lowest to highest precedence:
//
//  1. [Default]
//  2. a TOML file (deprank.toml)
//  3. a .env file and the process environment (DEPRANK_*, GITHUB_TOKEN, CHAIN_*)
//  4. command-line flags, applied by the CLI on the returned value
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/deprank/pkg/deps"
	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/rank"
	"github.com/matzehuels/deprank/pkg/settlement"
)

// AppName names the cache directory and the default config file.
const AppName = "deprank"

// Config is the complete process configuration.
type Config struct {
	Server   Server   `toml:"server"`
	Cache    Cache    `toml:"cache"`
	Store    Store    `toml:"store"`
	Lease    Lease    `toml:"lease"`
	GitHub   GitHub   `toml:"github"`
	Chain    Chain    `toml:"chain"`
	Pipeline Pipeline `toml:"pipeline"`
}

type Server struct {
	Addr string `toml:"addr"`
}

// Cache configures the snapshot directory and the metadata cache.
type Cache struct {
	Dir      string        `toml:"dir"`
	TTL      time.Duration `toml:"ttl"`
	RedisURL string        `toml:"redis_url"` // empty: file cache under Dir
}

// Store selects the persistence backend.
type Store struct {
	Driver   string `toml:"driver"` // "memory" or "mongo"
	MongoURI string `toml:"mongo_uri"`
	Database string `toml:"database"`
}

const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

// Lease configures the single-writer lock.
type Lease struct {
	RedisURL string        `toml:"redis_url"` // empty: in-process locks
	TTL      time.Duration `toml:"ttl"`
}

type GitHub struct {
	Token string `toml:"token"`
}

// Chain configures the settlement ledger. An empty RPCURL selects the
// in-memory ledger.
type Chain struct {
	RPCURL         string               `toml:"rpc_url"`
	PrivateKey     string               `toml:"private_key"`
	AccountAddress string               `toml:"account_address"`
	ChainID        string               `toml:"chain_id"`
	Contracts      settlement.Contracts `toml:"contracts"`
	ConfirmTimeout time.Duration        `toml:"confirm_timeout"`
	PollInterval   time.Duration        `toml:"poll_interval"`
}

// RPC returns the adapter configuration.
func (c Chain) RPC() settlement.RPCConfig {
	return settlement.RPCConfig{
		URL:            c.RPCURL,
		PrivateKey:     c.PrivateKey,
		AccountAddress: c.AccountAddress,
		ChainID:        c.ChainID,
		Contracts:      c.Contracts,
	}
}

// Pipeline holds the analysis and scheduling parameters.
type Pipeline struct {
	MaxDepth       int              `toml:"max_depth"`
	MaxNodes       int              `toml:"max_nodes"`
	Damping        float64          `toml:"damping"`
	Tolerance      float64          `toml:"tolerance"`
	MaxIterations  int              `toml:"max_iterations"`
	Budget         int64            `toml:"budget"`
	EdgeWeights    deps.EdgeWeights `toml:"edge_weights"`
	HistoryCommits int              `toml:"history_commits"`
	CountLines     bool             `toml:"count_lines"`
	FetchTimeout   time.Duration    `toml:"fetch_timeout"`
	SettleTimeout  time.Duration    `toml:"settle_timeout"`
	MaxRetries     int              `toml:"max_retries"`
	NetworkWorkers int              `toml:"network_workers"`
	CPUWorkers     int              `toml:"cpu_workers"`
}

// Rank returns the ranker options.
func (p Pipeline) Rank() rank.Options {
	return rank.Options{Damping: p.Damping, Tolerance: p.Tolerance, MaxIterations: p.MaxIterations}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080"},
		Cache: Cache{
			Dir: DefaultCacheDir(),
			TTL: 24 * time.Hour,
		},
		Store: Store{Driver: DriverMemory, Database: AppName},
		Lease: Lease{TTL: 30 * time.Second},
		Chain: Chain{
			ConfirmTimeout: settlement.DefaultConfirmTimeout,
			PollInterval:   settlement.DefaultPollInterval,
		},
		Pipeline: Pipeline{
			MaxDepth:       deps.DefaultMaxDepth,
			MaxNodes:       deps.DefaultMaxNodes,
			Damping:        rank.DefaultDamping,
			Tolerance:      rank.DefaultTolerance,
			MaxIterations:  rank.DefaultMaxIterations,
			Budget:         1000,
			HistoryCommits: 5000,
			FetchTimeout:   5 * time.Minute,
			SettleTimeout:  10 * time.Minute,
			MaxRetries:     3,
			NetworkWorkers: 8,
			CPUWorkers:     2,
		},
	}
}

// DefaultCacheDir returns $XDG_CACHE_HOME/deprank or ~/.cache/deprank.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(home, ".cache", AppName)
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeInvalidInput, "config: "+format, args...)
	}
	p := c.Pipeline
	if err := p.Rank().Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "config: pipeline")
	}
	switch {
	case p.Budget < 0:
		return invalid("pipeline.budget must not be negative")
	case p.MaxDepth < 0:
		return invalid("pipeline.max_depth must not be negative")
	case p.MaxRetries < 0:
		return invalid("pipeline.max_retries must not be negative")
	case p.NetworkWorkers <= 0 || p.CPUWorkers <= 0:
		return invalid("pipeline workers must be positive")
	case p.FetchTimeout <= 0 || p.SettleTimeout <= 0:
		return invalid("pipeline timeouts must be positive")
	case p.EdgeWeights.Pinned < 0 || p.EdgeWeights.Range < 0:
		return invalid("pipeline.edge_weights must not be negative")
	case c.Cache.Dir == "":
		return invalid("cache.dir is required")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return invalid("store.mongo_uri is required for the mongo driver")
		}
	default:
		return invalid("unknown store driver %q", c.Store.Driver)
	}
	if c.Chain.RPCURL != "" && c.Chain.PrivateKey == "" {
		return invalid("chain.private_key is required with chain.rpc_url")
	}
	return nil
}

// String renders the configuration with secrets masked.
func (c Config) String() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.GitHub.Token = mask(c.GitHub.Token)
	c.Chain.PrivateKey = mask(c.Chain.PrivateKey)
	return fmt.Sprintf("%+v", struct {
		Server   Server
		Cache    Cache
		Store    string
		Lease    Lease
		GitHub   GitHub
		Chain    Chain
		Pipeline Pipeline
	}{c.Server, c.Cache, c.Store.Driver, c.Lease, c.GitHub, c.Chain, c.Pipeline})
}
