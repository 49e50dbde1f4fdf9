// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/dbbridge/buildvars"
	"github.com/toeirei/dbbridge/internal/config"
	"github.com/toeirei/dbbridge/internal/db"
	"github.com/toeirei/dbbridge/internal/logging"
	"github.com/toeirei/dbbridge/internal/worker"
)

func (a *app) exportCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export every table to a JSON document",
		Long: `Writes a snapshot of all tables of the configured database to <file>.
A ".zst" suffix compresses the document with zstd.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorker(cmd.Context(), func(w *worker.Worker) error {
				_, err := w.Do(cmd.Context(), "export", func(ctx context.Context, m *db.ExportManager) (any, error) {
					if comment != "" {
						m.Comment = comment
					}
					return worker.ExportTask(args[0])(ctx, m)
				})
				if err == nil {
					logging.Infof("exported to %s", args[0])
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "comment stored in the document header")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace table contents with an exported document",
		Long: `Deletes all rows of every table named in <file> and inserts the rows
the document holds. Tables must already exist; other tables are untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorker(cmd.Context(), func(w *worker.Worker) error {
				_, err := w.Do(cmd.Context(), "import", worker.ImportTask(args[0]))
				if err == nil {
					logging.Infof("imported %s", args[0])
				}
				return err
			})
		},
	}
}

func (a *app) execCmd() *cobra.Command {
	var fetch, format string
	cmd := &cobra.Command{
		Use:   "exec <statement> [params...]",
		Short: "Run one statement",
		Long: `Runs <statement> with the given params bound to its %s placeholders.
Mutating statements are committed. --fetch selects what is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := db.ParseFetch(fetch)
			if err != nil {
				return err
			}
			params := make([]any, 0, len(args)-1)
			for _, p := range args[1:] {
				params = append(params, p)
			}
			return a.withWorker(cmd.Context(), func(w *worker.Worker) error {
				v, err := w.Do(cmd.Context(), "exec", worker.ExecTask(args[0], params, mode))
				if err != nil {
					return err
				}
				res := v.(*db.Result)
				if mode == db.FetchNone {
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "rows affected: %d\n", res.RowsAffected)
					return err
				}
				return render(cmd.OutOrStdout(), format, res.Rows)
			})
		},
	}
	cmd.Flags().StringVar(&fetch, "fetch", "all", `result rows to print ("none", "one", "all")`)
	cmd.Flags().StringVarP(&format, "output", "o", "json", `output format ("json", "yaml")`)
	return cmd
}

func (a *app) tablesCmd() *cobra.Command {
	var filter []string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorker(cmd.Context(), func(w *worker.Worker) error {
				v, err := w.Do(cmd.Context(), "tables", worker.TablesTask())
				if err != nil {
					return err
				}
				for _, name := range db.FilterTablesByTokens(v.([]string), filter) {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&filter, "filter", nil, "only list tables whose name contains every token")
	return cmd
}

func (a *app) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <database>",
		Short: "Report whether a database exists",
		Long:  `Prints "true" or "false". For sqlite <database> is a file path.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backend()
			if err != nil {
				return err
			}
			ok, err := db.NewConnector(b).Exists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
			return err
		},
	}
}

func (a *app) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <database>",
		Short: "Create a database if it is missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backend()
			if err != nil {
				return err
			}
			if err := db.NewConnector(b).Create(cmd.Context(), args[0]); err != nil {
				return err
			}
			logging.Infof("database %s is ready", args[0])
			return nil
		},
	}
}

func (a *app) renameTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename-table <file> <old> <new>",
		Short: "Rename a table inside an exported document",
		Long:  `Rewrites <file> in place. The file is left untouched if <old> is missing or <new> exists.`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.TransformFile(args[0], db.RenameTable(args[1], args[2])); err != nil {
				return err
			}
			logging.Infof("renamed %s to %s in %s", args[1], args[2], args[0])
			return nil
		},
	}
}

func (a *app) keepTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keep-tables <file> <table>...",
		Short: "Drop all but the named tables from an exported document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.TransformFile(args[0], db.KeepTables(args[1:]...)); err != nil {
				return err
			}
			logging.Infof("kept %d tables in %s", len(args)-1, args[0])
			return nil
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	var target config.Database
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy all rows into another database",
		Long: `Copies every table of the configured database into the target given by
the --to-* flags, replacing the target's rows. The target tables must exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if target.Type == "" {
				return fmt.Errorf("--to-type is required: %w", db.ErrInvalidArgument)
			}
			dstBackend, err := target.Backend(a.caps)
			if err != nil {
				return fmt.Errorf("target: %w", err)
			}
			ctx := cmd.Context()
			return a.withManager(ctx, func(src *db.ExportManager) error {
				dst := db.NewExportManager(dstBackend)
				return dst.Session(ctx, func(*db.Connector) error {
					if err := db.Migrate(ctx, src, dst); err != nil {
						return err
					}
					logging.Infof("migrated %s/%s to %s/%s", src.Backend().Name(), src.Database(), dst.Backend().Name(), dst.Database())
					return nil
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&target.Type, "to-type", "", "target database type")
	f.StringVar(&target.DSN, "to-dsn", "", "target DSN")
	f.StringVar(&target.Host, "to-host", "", "target host")
	f.IntVar(&target.Port, "to-port", 0, "target port")
	f.StringVar(&target.User, "to-user", "", "target user")
	f.StringVar(&target.Password, "to-password", "", "target password")
	f.StringVar(&target.Path, "to-path", "", "target sqlite file")
	f.StringVar(&target.Name, "to-name", "", "target database name")
	return cmd
}

func (a *app) maintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run engine maintenance (VACUUM, OPTIMIZE TABLE, ...)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorker(cmd.Context(), func(w *worker.Worker) error {
				_, err := w.Do(cmd.Context(), "maintain", worker.MaintainTask())
				return err
			})
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or persist the resolved configuration",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.cfg
			if c.Database.Password != "" {
				c.Database.Password = "********"
			}
			return render(cmd.OutOrStdout(), format, c)
		},
	}
	show.Flags().StringVarP(&format, "output", "o", "yaml", `output format ("json", "yaml")`)

	var system, force bool
	var path string
	write := &cobra.Command{
		Use:   "write",
		Short: "Write the resolved configuration to a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if path == "" {
				if path, err = config.GetConfigPath(system); err != nil {
					return err
				}
			}
			if !force && fileExists(path) {
				return fmt.Errorf("%s already exists (use --force to overwrite): %w", path, db.ErrInvalidArgument)
			}
			if err := config.WriteConfigTo(&a.cfg, path); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
	write.Flags().BoolVar(&system, "system", false, "write the system-wide file instead of the user file")
	write.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	write.Flags().StringVar(&path, "path", "", "explicit destination")

	cmd.AddCommand(show, write)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No config needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dbbridge %s\n", buildvars.String())
			return err
		},
	}
}

var errUnknownFormat = errors.New("unknown output format")
