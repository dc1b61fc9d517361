package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

// withEngine runs fn against an embedded registry, handling setup and
// teardown. Commands that support --server bypass it.
func withEngine(fn func(*registry.Registry) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, broker, err := openEngine(cfg, log.Level(flagLogLevel))
	if err != nil {
		return err
	}
	defer broker.Close()
	defer reg.Close()
	return fn(reg)
}

func storeArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return types.MainStoreID
}

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "List all stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c := remote(); c != nil {
			metas, err := c.ListStores()
			if err != nil {
				return err
			}
			printStores(metas)
			return nil
		}
		return withEngine(func(reg *registry.Registry) error {
			printStores(reg.ListStores())
			return nil
		})
	},
}

func printStores(metas []*types.StoreMeta) {
	if output(metas) {
		return
	}
	fmt.Printf("%-36s  %-20s  %-36s  %s\n", "STORE", "NAME", "SOURCE", "CREATED")
	for _, m := range metas {
		created := time.UnixMilli(m.CreatedAt).Format(time.RFC3339)
		fmt.Printf("%-36s  %-20s  %-36s  %s\n", m.StoreID, m.Name, m.SourceID, created)
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats [store]",
	Short: "Show store statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := storeArg(args)
		if c := remote(); c != nil {
			stats, err := c.Stats(id)
			if err != nil {
				return err
			}
			printStats(stats)
			return nil
		}
		return withEngine(func(reg *registry.Registry) error {
			stats, err := reg.Stats(id)
			if err != nil {
				return err
			}
			printStats(stats)
			return nil
		})
	},
}

func printStats(stats *types.StoreStats) {
	if output(stats) {
		return
	}
	fmt.Printf("Store:          %s\n", stats.StoreID)
	fmt.Printf("Memories:       %d\n", stats.Memories)
	fmt.Printf("Relationships:  %d\n", stats.Relationships)
	fmt.Printf("Tombstones:     %d\n", stats.Tombstones)
	fmt.Printf("WAL records:    %d\n", stats.WALRecords)
	fmt.Printf("Segments:       %d\n", stats.SealedSegments)
	fmt.Printf("Merkle root:    %s\n", stats.MerkleRoot)
	fmt.Printf("Chain hash:     %s\n", stats.ChainHash)
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots [store]",
	Short: "List a store's snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := storeArg(args)
		if c := remote(); c != nil {
			snaps, err := c.Snapshots(id)
			if err != nil {
				return err
			}
			printSnapshots(snaps)
			return nil
		}
		return withEngine(func(reg *registry.Registry) error {
			snaps, err := reg.ListSnapshots(id)
			if err != nil {
				return err
			}
			printSnapshots(snaps)
			return nil
		})
	},
}

func printSnapshots(snaps []*types.Snapshot) {
	if output(snaps) {
		return
	}
	fmt.Printf("%-36s  %-20s  %-10s  %s\n", "SNAPSHOT", "NAME", "SEQ", "CREATED")
	for _, s := range snaps {
		created := time.UnixMilli(s.CreatedAt).Format(time.RFC3339)
		fmt.Printf("%-36s  %-20s  %-10d  %s\n", s.ID, s.Name, s.Seq, created)
	}
}

var (
	flagForkFrom string
	flagForkName string
	flagForkNote string
	flagForkAt   string
)

var forkCmd = &cobra.Command{
	Use:   "fork",
	Short: "Create a fork of a store",
	Long: `Create a fork of a store, optionally at a past point in time.

Examples:
  # Fork main now
  burrow fork --from main --name experiment

  # Point-in-time fork
  burrow fork --from main --at 2026-07-01T12:00:00Z --note "pre-migration"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if c := remote(); c != nil {
			if flagForkAt != "" {
				return fmt.Errorf("--at is not supported through --server; use the /forks/pitr endpoint")
			}
			meta, err := c.Fork(flagForkFrom, flagForkName, flagForkNote)
			if err != nil {
				return err
			}
			printFork(meta)
			return nil
		}
		return withEngine(func(reg *registry.Registry) error {
			var meta *types.StoreMeta
			var err error
			if flagForkAt != "" {
				at, perr := time.Parse(time.RFC3339, flagForkAt)
				if perr != nil {
					return fmt.Errorf("failed to parse --at: %w", perr)
				}
				meta, err = reg.ForkAt(flagForkFrom, flagForkName, flagForkNote, at)
			} else {
				meta, err = reg.Fork(flagForkFrom, flagForkName, flagForkNote)
			}
			if err != nil {
				return err
			}
			printFork(meta)
			return nil
		})
	},
}

func printFork(meta *types.StoreMeta) {
	if output(meta) {
		return
	}
	fmt.Printf("Forked %s -> %s (at sequence %d)\n", meta.SourceID, meta.StoreID, meta.ForkSeq)
}

var verifyCmd = &cobra.Command{
	Use:   "verify [store]",
	Short: "Verify a store's hash chain and Merkle root",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := storeArg(args)
		var report *types.IntegrityReport
		var err error
		if c := remote(); c != nil {
			report, err = c.Verify(id)
		} else {
			err = withEngine(func(reg *registry.Registry) error {
				report, err = reg.VerifyIntegrity(id)
				return err
			})
		}
		if err != nil {
			return err
		}
		if !output(report) {
			if report.Valid {
				fmt.Printf("OK: %d records verified, root %s\n", report.RecordsVerified, report.MerkleRoot)
			} else {
				fmt.Printf("INVALID at sequence %d: %s\n", report.FirstBadSeq, report.Detail)
			}
		}
		if !report.Valid {
			return fmt.Errorf("integrity verification failed")
		}
		return nil
	},
}

var (
	flagAddCategory string
	flagAddType     string
	flagAddTags     []string
)

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if c := remote(); c != nil {
			m, err := c.AddMemory("", flagAddCategory, flagAddType, args[0], flagAddTags)
			if err != nil {
				return err
			}
			printMemory(m)
			return nil
		}
		return withEngine(func(reg *registry.Registry) error {
			m, err := reg.Main().AddMemory(cmd.Context(), store.AddMemoryParams{
				Category: flagAddCategory,
				Type:     flagAddType,
				Content:  args[0],
				Tags:     flagAddTags,
			})
			if err != nil {
				return err
			}
			printMemory(m)
			return nil
		})
	},
}

func printMemory(m *types.Memory) {
	if output(m) {
		return
	}
	fmt.Printf("%s (v%d) [%s/%s] %s\n", m.ID, m.Version, m.Category, m.Type, m.Content)
}

var (
	flagSearchMode  string
	flagSearchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := types.SearchMode(flagSearchMode)
		if c := remote(); c != nil {
			results, err := c.Search("", args[0], mode, flagSearchLimit)
			if err != nil {
				return err
			}
			printResults(results)
			return nil
		}
		return withEngine(func(reg *registry.Registry) error {
			results, err := reg.Main().Search(cmd.Context(), store.SearchParams{
				Query: args[0],
				Mode:  mode,
				Limit: flagSearchLimit,
			})
			if err != nil {
				return err
			}
			printResults(results)
			return nil
		})
	},
}

func printResults(results []*types.SearchResult) {
	if output(results) {
		return
	}
	for _, r := range results {
		fmt.Printf("%.4f  %s  %s\n", r.Score, r.Memory.ID, r.Memory.Content)
	}
}

func init() {
	forkCmd.Flags().StringVar(&flagForkFrom, "from", types.MainStoreID, "Source store id")
	forkCmd.Flags().StringVar(&flagForkName, "name", "", "Fork display name")
	forkCmd.Flags().StringVar(&flagForkNote, "note", "", "Fork note")
	forkCmd.Flags().StringVar(&flagForkAt, "at", "", "Point-in-time fork timestamp (RFC 3339)")

	addCmd.Flags().StringVar(&flagAddCategory, "category", "general", "Memory category")
	addCmd.Flags().StringVar(&flagAddType, "type", "note", "Memory type")
	addCmd.Flags().StringSliceVar(&flagAddTags, "tags", nil, "Memory tags")

	searchCmd.Flags().StringVar(&flagSearchMode, "mode", string(types.SearchHybrid), "Search mode (semantic, text, hybrid)")
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 10, "Maximum results")

	rootCmd.AddCommand(storesCmd, statsCmd, snapshotsCmd, forkCmd, verifyCmd, addCmd, searchCmd)
}
