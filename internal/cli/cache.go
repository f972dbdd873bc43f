package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/deprank/pkg/cache"
)

// metadataDir is where the file cache keeps HTTP responses and resolved
// refs. Snapshots live next to it under "snapshots".
func metadataDir(dir string) string { return filepath.Join(dir, "http") }

func snapshotsDir(dir string) string { return filepath.Join(dir, "snapshots") }

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage repository snapshots and cached API responses",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var keepSnapshots bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached snapshots and API responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Cache.Dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			responses, err := clearResponses(cfg.Cache.Dir)
			if err != nil {
				return fmt.Errorf("clear responses: %w", err)
			}
			snapshots := 0
			if !keepSnapshots {
				if snapshots, err = clearSnapshots(cfg.Cache.Dir); err != nil {
					return fmt.Errorf("clear snapshots: %w", err)
				}
			}

			printSuccess("Cleared %d cached responses and %d snapshots", responses, snapshots)
			printDetail("Directory: %s", cfg.Cache.Dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepSnapshots, "keep-snapshots", false, "only clear cached API responses")
	return cmd
}

// clearResponses empties the file cache and returns the number of entries removed.
func clearResponses(dir string) (int, error) {
	dir = metadataDir(dir)
	count := 0
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return nil
	})
	if count == 0 {
		return 0, nil
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return 0, err
	}
	return count, fc.Clear()
}

// clearSnapshots removes every cloned snapshot and returns how many there were.
func clearSnapshots(dir string) (int, error) {
	dir = snapshotsDir(dir)
	shards, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count := 0
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(dir, shard.Name()))
		if err != nil {
			continue
		}
		count += len(entries)
	}
	return count, os.RemoveAll(dir)
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Cache.Dir)
			return nil
		},
	}
}
