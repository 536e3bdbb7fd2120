// Command statusline-runner is the Background Runner (spec.md §4.6): the
// process the entry wrapper spawns detached, after the Renderer has
// already answered synchronously, to drive C4 so the *next* invocation
// sees fresh caches. It reads the same stdin payload shape the Renderer
// does, runs exactly one gather cycle, and exits.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"statusline/internal/broker"
	"statusline/internal/cachestore"
	"statusline/internal/config"
	"statusline/internal/coordinator"
	"statusline/internal/freshness"
	"statusline/internal/paths"
	"statusline/internal/render"
	"statusline/internal/telemetry"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "statusline-runner:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "statusline-runner",
		Short:         "drive one gather cycle for the session payload on stdin",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("config", "", "path to a YAML config file")
	cmd.Flags().Int64("deadline-ms", 0, "override the gather cycle's deadline in milliseconds")
	cmd.Flags().String("base-dir", "", "override the on-disk cache base directory")
	// categories_file is set via STATUSLINE_CATEGORIES_FILE or the YAML
	// config file's categories_file key (viper's AutomaticEnv already
	// covers it) rather than its own flag.

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if base, _ := cmd.Flags().GetString("base-dir"); base != "" {
			cfg.CacheBase = base
		}

		layout := paths.New(cfg.CacheBase)
		log := telemetry.New("runner", layout.RunnerLogFile())

		payload, err := parsePayload(cmd.InOrStdin())
		if err != nil {
			log.Error("payload_parse_failed", map[string]any{"error": err.Error()})
			return err
		}

		store := cachestore.New(layout, log, cfg.SessionCacheSize)
		coord := coordinator.New(layout)
		registry := freshness.New(cfg.Categories)
		b := broker.New(store, coord, registry, log)

		deadline := cfg.Deadline()
		if ms, _ := cmd.Flags().GetInt64("deadline-ms"); ms > 0 {
			deadline = timeFromMS(ms)
		}

		in := broker.Input{
			SessionID:      payload.SessionID,
			WorkingDir:     payload.WorkingDir(),
			TranscriptPath: payload.TranscriptPath,
			Model:          payload.ModelName(),
			ContextWindow:  payload.ContextWindow(),
			Deadline:       deadline,
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RunnerTimeout())
		defer cancel()

		if _, err := b.Gather(ctx, in); err != nil {
			log.Error("gather_failed", map[string]any{"session_id": in.SessionID, "error": err.Error()})
			return err
		}
		log.Info("gather_complete", map[string]any{"session_id": in.SessionID})
		return nil
	}

	return cmd
}

func parsePayload(r io.Reader) (render.Payload, error) {
	var p render.Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return render.Payload{}, fmt.Errorf("decode stdin payload: %w", err)
	}
	if p.SessionID == "" {
		return render.Payload{}, fmt.Errorf("stdin payload missing session_id")
	}
	if err := p.Validate(); err != nil {
		return render.Payload{}, fmt.Errorf("invalid stdin payload: %w", err)
	}
	return p, nil
}

func timeFromMS(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
