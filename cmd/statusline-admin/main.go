// Command statusline-admin is a small operator CLI for inspecting and
// repairing this module's on-disk state: list cached sessions, show the
// global cache, clear a stuck category's coordination markers, and sweep
// inactive sessions plus leftover atomicfile temp files.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"statusline/internal/atomicfile"
	"statusline/internal/cachestore"
	"statusline/internal/config"
	"statusline/internal/paths"
	"statusline/internal/session"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "statusline-admin:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, baseDir string

	root := &cobra.Command{
		Use:           "statusline-admin",
		Short:         "inspect and repair statusline's on-disk cache state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&baseDir, "base-dir", "", "override the on-disk cache base directory")

	layoutFor := func() (paths.Layout, error) {
		cfg, err := config.Load(configPath, nil)
		if err != nil {
			return paths.Layout{}, err
		}
		if baseDir != "" {
			cfg.CacheBase = baseDir
		}
		return paths.New(cfg.CacheBase), nil
	}

	root.AddCommand(newStatusCmd(layoutFor))
	root.AddCommand(newResetCategoryCmd(layoutFor))
	root.AddCommand(newGCCmd(layoutFor))
	return root
}

func newStatusCmd(layoutFor func() (paths.Layout, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "status [session-id]",
		Short: "print the global cache, or one session's health record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := layoutFor()
			if err != nil {
				return err
			}
			store := cachestore.New(layout, nil, 8)

			if len(args) == 1 {
				health := store.ReadSession(args[0])
				if health == nil {
					return fmt.Errorf("no cached health record for session %q", args[0])
				}
				return printJSON(cmd.OutOrStdout(), health)
			}
			return printJSON(cmd.OutOrStdout(), store.ReadGlobal())
		},
	}
}

func newResetCategoryCmd(layoutFor func() (paths.Layout, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-category <category>",
		Short: "clear a category's intent and in-progress markers",
		Long: "Removes the intent and in-progress marker files for a category, " +
			"for use when a process crashed mid-refresh and left a marker " +
			"pointing at a PID that no longer exists (the Coordinator's own " +
			"PID-liveness probe handles this automatically in steady state; " +
			"this command is the manual escape hatch).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := layoutFor()
			if err != nil {
				return err
			}
			category := args[0]
			removed := 0
			for _, p := range []string{layout.IntentFile(category), layout.InProgressFile(category)} {
				if err := os.Remove(p); err == nil {
					removed++
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("remove %s: %w", p, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d marker(s) for category %q\n", removed, category)
			return nil
		},
	}
}

func newGCCmd(layoutFor func() (paths.Layout, error)) *cobra.Command {
	var inactiveAfter time.Duration

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "remove inactive sessions and leftover atomicfile temp files",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := layoutFor()
			if err != nil {
				return err
			}
			store := cachestore.New(layout, nil, 8)

			ids, err := store.ListSessionIDs()
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			now := time.Now()
			removedSessions := 0
			for _, id := range ids {
				health := store.ReadSession(id)
				if health == nil {
					continue
				}
				s := session.Session{ID: id, LastSeen: health.UpdatedAt}
				if s.IsInactive(now, inactiveAfter) {
					if err := store.RemoveSession(id); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "remove session %s: %v\n", id, err)
						continue
					}
					removedSessions++
				}
			}

			removedTemps, err := atomicfile.Sweep(layout.SessionHealthDir(), staleTempFile(inactiveAfter))
			if err != nil {
				return fmt.Errorf("sweep temp files: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed %d inactive session(s), %d stale temp file(s)\n", removedSessions, removedTemps)
			return nil
		},
	}
	cmd.Flags().DurationVar(&inactiveAfter, "inactive-after", session.DefaultInactivityWindow, "age past which a session is eligible for removal")
	return cmd
}

func staleTempFile(maxAge time.Duration) func(os.FileInfo) bool {
	return func(info os.FileInfo) bool {
		return time.Since(info.ModTime()) > maxAge
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
