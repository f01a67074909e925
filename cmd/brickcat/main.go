package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"brickcat/internal"
	"brickcat/internal/api"
	"brickcat/internal/config"
	"brickcat/internal/enrich"
	"brickcat/internal/export"
	"brickcat/internal/logger"
	"brickcat/internal/scraper"
	"brickcat/internal/storage"
)

const exportPageSize = 500

type app struct {
	cfg    config.Config
	log    logger.Logger
	db     *storage.DB
	engine *enrich.Engine
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := enrich.NewEngine(cfg, scraper.NewClient(cfg, log), log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: db, engine: engine}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
	_ = a.log.Sync()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "brickcat",
		Short:         "Brick inventory catalog with instruction image enrichment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd(), newColumnsCmd(), newEnrichCmd(), newSearchCmd(), newExportCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if port > 0 {
				a.cfg.Port = port
			}
			return api.NewServer(a.cfg, a.db, a.engine, a.log).Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT)")
	return cmd
}

func newColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "List the catalog table columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			columns, err := a.db.Columns(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(columns, "\n"))
			return nil
		},
	}
}

func newEnrichCmd() *cobra.Command {
	var setKey, pieceKey string
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Resolve the images for one set key and piece key",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			row := internal.Row{internal.SetKeyField: setKey, internal.PieceKeyField: pieceKey}
			res, err := a.engine.Enrich(cmd.Context(), enrich.Single(internal.RecordFromRow(row)))
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&setKey, "set", "", "set key")
	cmd.Flags().StringVar(&pieceKey, "piece", "", "piece key")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var column, value string
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the catalog and print rows with their images",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(column) == "" || strings.TrimSpace(value) == "" || page < 1 || pageSize < 1 {
				return fmt.Errorf("--column --value --page and --page-size are required")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.db.Search(cmd.Context(), column, value, pageSize, (page-1)*pageSize)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("no rows for %s=%s", column, value)
			}
			res, err := a.engine.Enrich(cmd.Context(), enrich.Batch(internal.RecordsFromRows(rows)...))
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"data": rows, "imgData": res})
		},
	}
	cmd.Flags().StringVar(&column, "column", "", "column to match")
	cmd.Flags().StringVar(&value, "value", "", "value to match")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "rows per page")
	return cmd
}

func newExportCmd() *cobra.Command {
	var column, value, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every matching row with its images to xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(column) == "" || strings.TrimSpace(value) == "" {
				return fmt.Errorf("--column and --value are required")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if out == "" {
				out = filepath.Join(a.cfg.OutputDir, fmt.Sprintf("%s_%s.xlsx", column, sanitizeFilename(value)))
			}

			ctx := cmd.Context()
			var rows []internal.Row
			for offset := 0; ; offset += exportPageSize {
				page, err := a.db.Search(ctx, column, value, exportPageSize, offset)
				if err != nil {
					return err
				}
				rows = append(rows, page...)
				if len(page) < exportPageSize {
					break
				}
			}
			if len(rows) == 0 {
				return fmt.Errorf("no rows for %s=%s", column, value)
			}

			images, err := a.engine.EnrichBatch(ctx, internal.RecordsFromRows(rows))
			if err != nil {
				return err
			}
			columns, err := a.db.Columns(ctx)
			if err != nil {
				return err
			}
			if err := export.RowsToXLSX(columns, rows, images, out); err != nil {
				return err
			}
			fmt.Printf("exported %d rows to %s\n", len(rows), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&column, "column", "", "column to match")
	cmd.Flags().StringVar(&value, "value", "", "value to match")
	cmd.Flags().StringVar(&out, "out", "", "output xlsx path")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sanitizeFilename(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
