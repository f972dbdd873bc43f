package cli

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/matzehuels/deprank/pkg/buildinfo"
	"github.com/matzehuels/deprank/pkg/cache"
	"github.com/matzehuels/deprank/pkg/config"
	"github.com/matzehuels/deprank/pkg/deps"
	"github.com/matzehuels/deprank/pkg/engine"
	"github.com/matzehuels/deprank/pkg/integrations/github"
	"github.com/matzehuels/deprank/pkg/integrations/registry"
	"github.com/matzehuels/deprank/pkg/lease"
	"github.com/matzehuels/deprank/pkg/manifest"
	"github.com/matzehuels/deprank/pkg/settlement"
	"github.com/matzehuels/deprank/pkg/source"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/store/mongo"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	envFile    string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          config.AppName,
		Short:        "DepRank ranks the people behind a project's dependencies and pays them",
		Long:         `DepRank fetches a repository, builds its dependency graph, ranks contributors across that graph and distributes a budget among them on a settlement ledger.`,
		Version:      buildinfo.Get().Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "TOML config file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "dotenv file (default: .env)")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.runCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.airdropCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the configuration named by the persistent flags.
func (c *CLI) loadConfig() (config.Config, error) {
	return config.Load(config.LoadOptions{Path: c.configPath, EnvFile: c.envFile})
}

// =============================================================================
// Engine Factory
// =============================================================================

// backend selects how durable the engine's collaborators are.
type backend struct {
	// ephemeral forces the in-memory store and in-process leases, for
	// one-shot commands that exit when the workflow stops.
	ephemeral bool

	// dryRun settles against an in-memory ledger.
	dryRun bool
}

// runtime is an engine plus everything that must be closed after it.
type runtime struct {
	Engine  *engine.Engine
	closers []func(context.Context) error
	redis   map[string]*redis.Client
}

// Close stops the engine, then releases its collaborators in reverse order.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Engine != nil {
		errs = append(errs, r.Engine.Close(ctx))
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}
	return stderrors.Join(errs...)
}

func (r *runtime) onClose(fn func(context.Context) error) {
	r.closers = append(r.closers, fn)
}

// redisClient returns one client per URL so the cache and the lease
// backends share a connection pool when they point at the same server.
func (r *runtime) redisClient(ctx context.Context, url string) (*redis.Client, error) {
	if client, ok := r.redis[url]; ok {
		return client, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	if r.redis == nil {
		r.redis = make(map[string]*redis.Client)
	}
	r.redis[url] = client
	r.onClose(func(context.Context) error { return client.Close() })
	return client, nil
}

// newRuntime wires an engine from cfg. On error everything opened so far
// is closed.
func (c *CLI) newRuntime(ctx context.Context, cfg config.Config, b backend) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	meta, keyer, err := rt.openCache(ctx, cfg.Cache, b.ephemeral)
	if err != nil {
		return nil, err
	}
	rt.onClose(func(context.Context) error { return meta.Close() })

	fetcher, err := source.NewFetcher(source.Options{
		Dir:    cfg.Cache.Dir,
		Remote: source.NewGitRemote(cfg.GitHub.Token),
		Refs:   meta,
		Keyer:  keyer,
		Logger: c.Logger,
	})
	if err != nil {
		return nil, err
	}

	gh := github.NewClient(cfg.GitHub.Token, meta, cfg.Cache.TTL)
	parser := manifest.NewParser()
	locator := deps.Locators{
		deps.NewRegistryLocator(registry.NewClient(meta, cfg.Cache.TTL)),
		deps.NewGitHubLocator(gh),
	}

	st, err := c.openStore(ctx, cfg.Store, b.ephemeral)
	if err != nil {
		return nil, err
	}
	rt.onClose(st.Close)

	locker, err := rt.openLocker(ctx, cfg.Lease, b.ephemeral)
	if err != nil {
		return nil, err
	}

	chain, err := openChain(cfg.Chain, b.dryRun)
	if err != nil {
		return nil, err
	}

	rt.Engine, err = engine.New(engine.Options{
		Pipeline: cfg.Pipeline,
		Settlement: settlement.Options{
			ConfirmTimeout: cfg.Chain.ConfirmTimeout,
			PollInterval:   cfg.Chain.PollInterval,
		},
		Store:    st,
		Fetcher:  fetcher,
		Chain:    chain,
		Resolver: deps.NewRepoResolver(fetcher, parser, locator),
		Parser:   parser,
		Metrics:  gh,
		Locker:   locker,
		LeaseTTL: cfg.Lease.TTL,
		Logger:   c.Logger,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// openCache returns the metadata cache: Redis when configured, otherwise
// files under the cache directory. Keys in a shared Redis are scoped to
// the application.
func (r *runtime) openCache(ctx context.Context, cfg config.Cache, ephemeral bool) (cache.Cache, cache.Keyer, error) {
	keyer := cache.NewDefaultKeyer()
	if cfg.RedisURL != "" && !ephemeral {
		client, err := r.redisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisCacheFromClient(client), cache.NewScopedKeyer(keyer, config.AppName), nil
	}
	fc, err := cache.NewFileCache(metadataDir(cfg.Dir))
	if err != nil {
		return cache.NewDisabled(), keyer, nil
	}
	return fc, keyer, nil
}

func (c *CLI) openStore(ctx context.Context, cfg config.Store, ephemeral bool) (store.Store, error) {
	if ephemeral || cfg.Driver != config.DriverMongo {
		return store.NewMemory(), nil
	}
	m, err := mongo.Open(ctx, cfg.MongoURI, cfg.Database)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("mongo store opened", "database", cfg.Database)
	cached, err := store.NewCached(m, store.DefaultCacheSize)
	if err != nil {
		_ = m.Close(ctx)
		return nil, err
	}
	return cached, nil
}

func (r *runtime) openLocker(ctx context.Context, cfg config.Lease, ephemeral bool) (lease.Locker, error) {
	if ephemeral || cfg.RedisURL == "" {
		return lease.NewLocal(), nil
	}
	client, err := r.redisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return lease.NewRedisFromClient(client), nil
}

func openChain(cfg config.Chain, dryRun bool) (settlement.Chain, error) {
	if dryRun || cfg.RPCURL == "" {
		return settlement.NewMemoryLedger(), nil
	}
	return settlement.NewRPCChain(cfg.RPC())
}
