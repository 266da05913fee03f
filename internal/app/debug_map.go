package app

import (
	"fmt"
	"net"
	"strings"
	"time"

	"countdown/internal/observability/debugsrv"
)

// mapDebugConfig validates and converts the debug section. It never starts
// the server.
func mapDebugConfig(cfg *Config) (debugsrv.Config, error) {
	var out debugsrv.Config
	if cfg == nil || cfg.Debug == nil {
		return out, nil
	}
	dc := cfg.Debug

	out.Enabled = dc.Enabled
	out.AllowInsecure = dc.AllowInsecure
	out.Pprof = dc.Pprof
	out.Token = strings.TrimSpace(dc.Token)
	out.Addr = strings.TrimSpace(dc.Addr)
	if out.Addr == "" {
		out.Addr = debugsrv.DefaultAddr
	}

	var err error
	if out.ReadTimeout, err = parseDurationOrDefault("debug.read_timeout", dc.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = parseDurationOrDefault("debug.idle_timeout", dc.IdleTimeout, 120*time.Second); err != nil {
		return out, err
	}

	if out.Enabled {
		if _, _, err := net.SplitHostPort(out.Addr); err != nil {
			return out, fmt.Errorf("debug.addr: invalid %q (expected host:port): %w", out.Addr, err)
		}
		// Security: refuse public bind without explicit opt-in.
		if !out.AllowInsecure && out.Token == "" && !debugsrv.IsLoopbackAddr(out.Addr) {
			return out, fmt.Errorf("debug: binding to non-loopback addr requires token or allow_insecure=true")
		}
	}
	return out, nil
}
