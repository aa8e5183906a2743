package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/roach88/sqlrest/internal/catalog"
	"github.com/roach88/sqlrest/internal/compiler"
	"github.com/roach88/sqlrest/internal/config"
	"github.com/roach88/sqlrest/internal/engine"
	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/store"
)

// loadConfig reads .env files, the config file and the environment.
// Validation is left to the caller: translate runs without a backend.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if err := config.LoadDotEnv("."); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load .env", err)
	}
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger. Verbose forces debug level.
func newLogger(cfg *config.Config, opts *RootOptions, w io.Writer) *slog.Logger {
	logCfg := cfg.Log
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	return logCfg.NewLogger(w)
}

// newTranslator wires the compiler, catalog and client into a Translator.
func newTranslator(cfg *config.Config, client postgrest.Client, logger *slog.Logger) (*engine.Translator, error) {
	comp := compiler.New(compiler.Options{
		Strict:       cfg.Translator.Strict,
		DefaultLimit: cfg.Translator.DefaultLimit,
		MaxRows:      cfg.Translator.MaxRows,
		Logger:       logger,
	})

	opts := []engine.Option{
		engine.WithCompiler(comp),
		engine.WithStrictMutations(cfg.Translator.StrictMutations),
		engine.WithLogger(logger),
	}
	if cfg.Catalog != "" {
		cat, err := catalog.Load(cfg.Catalog)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
		}
		opts = append(opts, engine.WithVolatileColumns(cat))
	}
	return engine.New(client, opts...)
}

// openClient opens the configured backend. The returned close function
// is never nil.
func openClient(cfg *config.Config, logger *slog.Logger) (postgrest.Client, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendPostgREST:
		client, err := postgrest.NewHTTPClient(postgrest.HTTPConfig{
			URL:     cfg.PostgREST.URL,
			APIKey:  cfg.PostgREST.APIKey,
			Schema:  cfg.PostgREST.Schema,
			Timeout: time.Duration(cfg.PostgREST.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, noop, err
		}
		return client, noop, nil
	case config.BackendSQL:
		st, err := store.Open(store.Config{
			Driver:      cfg.SQL.Driver,
			DSN:         cfg.SQL.DSN,
			ApplySchema: cfg.SQL.ApplySchema,
			Logger:      logger,
		})
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// offlineClient backs translators that only compile. Prepare never
// reaches it.
type offlineClient struct{}

var errOffline = errors.New("translate does not execute statements")

func (offlineClient) Execute(context.Context, *postgrest.Request) (*postgrest.Response, error) {
	return nil, errOffline
}

// parseParams turns command-line arguments into statement parameters.
// Each argument is decoded as JSON when it parses (42, true, null,
// ["vip"]) and is otherwise taken as a plain string. With raw set,
// every argument stays a string.
func parseParams(args []string, raw bool) []any {
	params := make([]any, len(args))
	for i, arg := range args {
		params[i] = arg
		if raw {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(arg))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			continue
		}
		params[i] = v
	}
	return params
}

// readSQL returns the statement argument, or stdin when it is "-".
func readSQL(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read statement from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
