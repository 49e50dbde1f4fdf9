// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the dbbridge command-line interface using Cobra. The root
// command loads configuration for every subcommand; the subcommands move
// data in and out of the configured database.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/toeirei/dbbridge/buildvars"
	"github.com/toeirei/dbbridge/internal/config"
	"github.com/toeirei/dbbridge/internal/db"
	"github.com/toeirei/dbbridge/internal/logging"
	"github.com/toeirei/dbbridge/internal/worker"
)

func main() {
	ctx, stop := signalContext()
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM. Running tasks finish;
// waiting commands return early and the worker shuts down cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// app carries what PersistentPreRunE resolved for the running command.
type app struct {
	configFile string
	cfg        config.Config
	caps       db.Capabilities
}

// NewRootCmd builds a fresh command tree. Tests call it to get isolated
// instances.
func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "dbbridge",
		Short: "dbbridge moves data between SQLite, MySQL and PostgreSQL databases.",
		Long: `dbbridge is a thin data access layer over SQLite, MySQL and PostgreSQL.
It runs statements, lists tables, and exports a database to a portable JSON
document that can be imported back or into another engine.

Settings come from dbbridge.yaml, DBBRIDGE_* environment variables and flags.`,
		Version:       buildvars.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default is ./dbbridge.yaml, then the user and system config dirs)")
	pf.String("db-type", "sqlite", `database type ("sqlite", "mysql", "postgres")`)
	pf.String("db-dsn", "", "driver DSN; discrete --db-* flags override its parts")
	pf.String("db-host", "", "server host")
	pf.Int("db-port", 0, "server port (default depends on --db-type)")
	pf.String("db-user", "", "server user")
	pf.String("db-password", "", "server password")
	pf.String("db-path", "./dbbridge.db", "sqlite database file")
	pf.String("db-name", "", "default database on the server")
	pf.String("log-level", "info", `log level ("debug", "info", "warn", "error")`)
	pf.Bool("debug", false, "log every statement")

	cmd.AddCommand(
		a.exportCmd(),
		a.importCmd(),
		a.execCmd(),
		a.tablesCmd(),
		a.existsCmd(),
		a.createCmd(),
		a.renameTableCmd(),
		a.keepTablesCmd(),
		a.migrateCmd(),
		a.maintainCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	c, err := config.LoadConfig[config.Config](cmd, config.Defaults(), a.configFile)
	if err != nil {
		return err
	}
	level := c.Log.Level
	if c.Debug {
		level = "debug"
	}
	if err := logging.SetLevel(level); err != nil {
		return err
	}
	db.SetDebug(c.Debug)
	a.cfg = c
	a.caps = db.ProbeDrivers()
	return nil
}

func (a *app) backend() (db.Backend, error) {
	return a.cfg.Database.Backend(a.caps)
}

// withWorker starts a worker on the configured backend, runs fn and stops
// the worker again.
func (a *app) withWorker(ctx context.Context, fn func(*worker.Worker) error) error {
	b, err := a.backend()
	if err != nil {
		return err
	}
	w := worker.New(b)
	if err := w.Start(ctx); err != nil {
		return err
	}
	return errors.Join(fn(w), w.Stop())
}

// withManager connects an ExportManager for the duration of fn.
func (a *app) withManager(ctx context.Context, fn func(*db.ExportManager) error) error {
	b, err := a.backend()
	if err != nil {
		return err
	}
	m := db.NewExportManager(b)
	return m.Session(ctx, func(*db.Connector) error { return fn(m) })
}
