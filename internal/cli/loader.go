package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/attest/internal/broadcast"
	"github.com/roach88/attest/internal/config"
	"github.com/roach88/attest/internal/ledger"
	"github.com/roach88/attest/internal/registry"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric   = "E_GENERIC"   // Generic/unknown error
	ErrCodeConfig    = "E_CONFIG"    // Config file missing or invalid
	ErrCodeStore     = "E_STORE"     // Store could not be opened
	ErrCodeBackend   = "E_BACKEND"   // Store reachable but operation failed
	ErrCodeEncoding  = "E_ENCODING"  // Operation could not be fingerprinted
	ErrCodeDuplicate = "E_DUPLICATE" // Fingerprint already claimed
	ErrCodeNotFound  = "E_NOT_FOUND" // No entry for the fingerprint
	ErrCodeTimeout   = "E_TIMEOUT"   // Wait on an in-flight submission expired
)

// closerFunc adapts a func to io.Closer for teardown chains.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openRegistry builds a Registry from the resolved configuration: the
// optional --config file, overlaid with the --db override, defaults
// otherwise. The returned closer tears down the store and any sink.
func openRegistry(ctx context.Context, opts *RootOptions) (*registry.Registry, io.Closer, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = loaded
	}
	if opts.DBPath != "" {
		cfg.Store.Path = opts.DBPath
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open store", err)
	}

	closers := []io.Closer{store}
	closeAll := closerFunc(func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})

	regOpts := []registry.Option{
		registry.WithLogger(newLogger(opts.Verbose)),
	}
	if cfg.Submit.WaitTimeout > 0 {
		regOpts = append(regOpts, registry.WithWaitTimeout(time.Duration(cfg.Submit.WaitTimeout)))
	}
	if len(cfg.Broadcast.Brokers) > 0 {
		sink := broadcast.NewKafkaSink(cfg.Broadcast.Brokers, cfg.Broadcast.Topic)
		closers = append(closers, sink)
		regOpts = append(regOpts, registry.WithSinks(sink))
	}

	reg, err := registry.New(ctx, store, regOpts...)
	if err != nil {
		closeAll.Close()
		return nil, nil, WrapExitError(ExitCommandError, "open registry", err)
	}
	return reg, closeAll, nil
}

func openStore(cfg config.StoreConfig) (ledger.Store, error) {
	switch cfg.Backend {
	case "memory":
		return ledger.NewMemoryStore(), nil
	case "pebble":
		return ledger.OpenPebble(cfg.Path)
	default:
		return ledger.OpenSQLite(cfg.Path)
	}
}

// newLogger returns the CLI logger. Diagnostics go to stderr so they never
// corrupt JSON output on stdout; non-verbose runs log nothing.
func newLogger(verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
