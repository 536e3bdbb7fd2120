// Command statusline is the C5 entry point: read the stdin payload, look
// up the cached session health, print a bounded-latency status line. It
// takes no flags of its own — precedence over the width bucket is the
// STATUSLINE_TERM_WIDTH environment variable the wrapper script sets — and
// never blocks on anything the Background Runner would normally do.
package main

import (
	"os"

	"statusline/internal/config"
	"statusline/internal/freshness"
	"statusline/internal/paths"
	"statusline/internal/render"
)

func main() {
	cfg, err := config.Load(os.Getenv("STATUSLINE_CONFIG"), nil)
	if err != nil {
		cfg = fallbackConfig()
	}

	layout := paths.New(cfg.CacheBase)
	registry := freshness.New(cfg.Categories)
	renderer := render.New(layout, registry)
	renderer.Run(os.Stdin, os.Stdout)
}

// fallbackConfig keeps the Renderer alive even when Load fails (a
// malformed config file must never take the status line down).
func fallbackConfig() config.Config {
	cfg, _ := config.Load("", nil)
	return cfg
}
