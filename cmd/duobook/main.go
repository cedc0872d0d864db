package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duobook/duobook-go/internal/config"
	"github.com/duobook/duobook-go/internal/library"
	"github.com/duobook/duobook-go/internal/localstore"
	"github.com/duobook/duobook-go/internal/logger"
	"github.com/duobook/duobook-go/internal/reconcile"
	"github.com/duobook/duobook-go/internal/remote"
	"github.com/duobook/duobook-go/internal/session"
)

// app holds everything a command needs. It is built once per invocation.
type app struct {
	cfg     config.ClientConfig
	logger  *slog.Logger
	logFile io.Closer
	store   *localstore.Store
	client  *remote.Client
	session *session.Manager
	library *library.Library
	engine  *reconcile.Engine
	out     io.Writer
}

var (
	v  = viper.New()
	ap *app

	noSync bool
)

var rootCmd = &cobra.Command{
	Use:   "duobook",
	Short: "Offline-first dual-language library",
	Long: `duobook keeps your dual-language books and reading positions on this
device and syncs them with a duobook server whenever you are online.

Every command works offline. Changes are synced the next time a sync runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		ap = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if ap == nil {
			return nil
		}
		return ap.close()
	},
}

func init() {
	config.SetClientDefaults(v)

	flags := rootCmd.PersistentFlags()
	flags.String(config.KeyDataDir, config.DefaultDataDir(), "directory holding the local library")
	flags.String(config.KeyServer, "", "server address (defaults to the last login)")
	flags.String(config.KeyLogLevel, "info", "log level: debug, info, warn, error")
	flags.BoolVar(&noSync, "no-sync", false, "do not sync after changing the library")

	for _, key := range []string{config.KeyDataDir, config.KeyServer, config.KeyLogLevel} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "library", Title: "Library:"},
		&cobra.Group{ID: "sync", Title: "Sync and account:"},
	)
}

func newApp(ctx context.Context, out io.Writer) (*app, error) {
	cfg, err := config.LoadClient(v)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	logFile, err := logger.NewFileWriter(cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log := logger.New(logger.Config{
		Writer: logFile,
		Format: logger.FormatJSON,
		Level:  logger.ParseLevel(cfg.LogLevel),
	})
	slog.SetDefault(log)

	store, err := localstore.Open(filepath.Join(cfg.DataDir, "library"), log)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	server := cfg.Server
	if server == "" {
		if info, err := store.LoginInfo(ctx); err == nil && info.ServerAddress != "" {
			server = info.ServerAddress
		} else {
			server = config.DefaultServer
		}
	}
	cfg.Server = server

	client, err := remote.New(server, remote.WithTimeout(cfg.Timeout), remote.WithLogger(log))
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  log,
		logFile: logFile,
		store:   store,
		client:  client,
		session: session.NewManager(store, client, log),
		library: library.New(store),
		out:     out,
	}
	a.engine = reconcile.NewEngine(store, client, a.session, log)

	a.session.Subscribe(session.ListenerFunc(func(valid bool) {
		if !valid {
			fmt.Fprintln(a.out, renderWarn("Signed out on this device."))
		}
	}))
	a.engine.Subscribe(reconcile.ObserverFunc(a.announceNewBooks))

	return a, nil
}

func (a *app) close() error {
	return errors.Join(a.store.Close(), a.logFile.Close())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, renderFail("Error: "+err.Error()))
		os.Exit(1)
	}
}
