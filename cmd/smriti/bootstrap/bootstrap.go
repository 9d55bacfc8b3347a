// Package bootstrap turns the resolved configuration of a smriti command into
// the running pieces: logger, backend client, chat cache, reply event
// publisher and transcript manager.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/localmind/smriti/pkg/backend"
	"github.com/localmind/smriti/pkg/config"
	"github.com/localmind/smriti/pkg/dotdir"
	"github.com/localmind/smriti/pkg/eventstream"
	"github.com/localmind/smriti/pkg/eventstream/kafka"
	"github.com/localmind/smriti/pkg/eventstream/nop"
	"github.com/localmind/smriti/pkg/logger"
	"github.com/localmind/smriti/pkg/storage"
	"github.com/localmind/smriti/pkg/storage/inmemory"
	"github.com/localmind/smriti/pkg/storage/sqlite"
	"github.com/localmind/smriti/pkg/stream"
	"github.com/localmind/smriti/pkg/transcript"
	"github.com/localmind/smriti/pkg/utils"
)

const logFileName = "smriti.log"

// Env is everything a command needs to talk to the backend.
type Env struct {
	Config    *config.Config
	Dir       string
	Logger    *slog.Logger
	Client    *backend.Client
	Cache     storage.Driver
	Publisher eventstream.Publisher
	Manager   *transcript.Manager

	logFile io.Closer
}

// LoadConfig resolves the configuration for cmd: flags registered through
// config.AddClientFlags, then SMRITI_* env, then config.toml, then defaults.
func LoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving config dir: %w", err)
	}

	v, err := config.InitViper(dir)
	if err != nil {
		return nil, "", err
	}
	config.BindRegisteredFlags(v, cmd, config.ClientFlags, config.ClientFlagKeys)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

// OpenClient builds an Env holding only the logger and the backend client,
// for commands that never stream.
func OpenClient(cmd *cobra.Command) (*Env, error) {
	cfg, dir, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	env := &Env{Config: cfg, Dir: dir}

	env.Logger, env.logFile, err = newLogger(dir, debug)
	if err != nil {
		return nil, err
	}

	env.Client, err = backend.NewClient(backend.Config{
		BaseURL:  cfg.Client.BaseURL,
		Model:    cfg.Client.Model,
		Username: cfg.Client.Username,
		Logger:   env.Logger,
	})
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	return env, nil
}

// Open builds a full Env for cmd, seeded from the chat cache. extra
// supervisor options are appended after the configured ones.
func Open(cmd *cobra.Command, extra ...stream.SupervisorOption) (*Env, error) {
	env, err := OpenClient(cmd)
	if err != nil {
		return nil, err
	}

	if err := env.open(cmd.Context(), extra); err != nil {
		_ = env.Close()
		return nil, err
	}
	return env, nil
}

func (e *Env) open(ctx context.Context, extra []stream.SupervisorOption) error {
	var err error
	cfg := e.Config

	e.Cache, err = NewCache(ResolveSQLitePath(cfg.Storage.SQLitePath, e.Dir), e.Logger)
	if err != nil {
		return err
	}

	e.Publisher, err = NewPublisher(cfg.EventStream, e.Logger)
	if err != nil {
		return err
	}

	opts, err := SupervisorOptions(cfg.Stream)
	if err != nil {
		return err
	}

	e.Manager, err = transcript.NewManager(transcript.Config{
		Backend:   e.Client,
		Cache:     e.Cache,
		Publisher: e.Publisher,
		Source: eventstream.EventSource{
			Client:  "smriti/" + utils.Version,
			BaseURL: e.Client.BaseURL(),
			Model:   e.Client.Model(),
		},
		OnConflict:        transcript.ConflictPolicy(cfg.Stream.OnConflict),
		ResetOnRetry:      cfg.Stream.ResetOnRetry,
		RefreshOnComplete: cfg.Stream.Refresh(),
		SupervisorOptions: append(opts, extra...),
		Logger:            e.Logger,
	})
	if err != nil {
		return err
	}

	if n, err := e.Manager.LoadCache(ctx); err != nil {
		e.Logger.Warn("could not load chat cache", "error", err)
	} else {
		e.Logger.Debug("chat cache loaded", "chats", n)
	}
	return nil
}

// Close shuts everything down in reverse order of Open.
func (e *Env) Close() error {
	var errs []error
	if e.Manager != nil {
		errs = append(errs, e.Manager.Close())
	}
	if e.Publisher != nil {
		errs = append(errs, e.Publisher.Close())
	}
	if e.Cache != nil {
		errs = append(errs, e.Cache.Close())
	}
	if e.logFile != nil {
		errs = append(errs, e.logFile.Close())
	}
	return errors.Join(errs...)
}

// SupervisorOptions maps the stream section onto supervisor options.
func SupervisorOptions(s config.StreamConfig) ([]stream.SupervisorOption, error) {
	delay, err := s.Delay()
	if err != nil {
		return nil, err
	}

	opts := []stream.SupervisorOption{
		stream.WithSessionOptions(stream.WithCompleteEvent(s.CompleteEvent)),
	}
	if s.MaxAttempts > 0 {
		opts = append(opts, stream.WithMaxAttempts(int(s.MaxAttempts)))
	}
	if delay > 0 {
		opts = append(opts, stream.WithBaseDelay(delay))
	}
	return opts, nil
}

// ResolveSQLitePath places a relative cache path inside the smriti
// directory. An empty path stays empty and selects the in-memory cache.
func ResolveSQLitePath(path, dir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// NewCache opens the SQLite cache at path, or an in-memory cache when path
// is empty.
func NewCache(path string, l *slog.Logger) (storage.Driver, error) {
	l = logger.OrNop(l)
	if path == "" {
		l.Debug("using in-memory chat cache")
		return inmemory.NewDriver(), nil
	}

	driver, err := sqlite.NewSQLiteDriver(path)
	if err != nil {
		return nil, fmt.Errorf("opening chat cache: %w", err)
	}
	l.Debug("using SQLite chat cache", "path", path)
	return driver, nil
}

// NewPublisher returns the reply event publisher selected by cfg.Provider.
func NewPublisher(cfg config.EventStreamConfig, l *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case "":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			Logger:  l,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown eventstream provider %q", cfg.Provider)
	}
}

// newLogger always writes to smriti.log in the smriti directory. With debug
// set it also writes to stderr, pretty when stderr is a terminal.
func newLogger(dir string, debug bool) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(logger.WithDebug(debug), logger.WithJSON(true), logger.WithWriter(f))
	if !debug {
		return file, f, nil
	}

	console := logger.New(
		logger.WithDebug(true),
		logger.WithPretty(term.IsTerminal(int(os.Stderr.Fd()))),
		logger.WithWriter(os.Stderr),
	)
	return logger.Multi(file, console), f, nil
}
