package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wms-platform/coldroom-service/internal/application"
	"github.com/wms-platform/coldroom-service/internal/config"
	"github.com/wms-platform/coldroom-service/internal/domain"
	"github.com/wms-platform/coldroom-service/internal/infrastructure/events"
	"github.com/wms-platform/coldroom-service/internal/infrastructure/storage"
	"github.com/wms-platform/coldroom-service/pkg/cloudevents"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/metrics"
	"github.com/wms-platform/coldroom-service/pkg/outbox"
)

var (
	timeout   time.Duration
	olderThan time.Duration
	asJSON    bool
)

// env is what every subcommand works against
type env struct {
	driver  string
	store   domain.Store
	outbox  outbox.Repository
	catalog *domain.Catalog
	logger  *logging.Logger
	metrics *metrics.Metrics
	migrate func(ctx context.Context) error
	close   func()
}

// openEnv is replaced in tests
var openEnv = func(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logConfig := logging.DefaultConfig("coldroomctl")
	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(logConfig)
	m := metrics.New(metrics.DefaultConfig("coldroomctl"))

	backend, err := storage.Open(ctx, cfg, cloudevents.NewEventFactory(events.Source), m, logger)
	if err != nil {
		return nil, err
	}
	return &env{
		driver:  backend.Driver,
		store:   backend.Store,
		outbox:  backend.Outbox,
		catalog: cfg.Catalog,
		logger:  logger,
		metrics: m,
		migrate: backend.Migrate,
		close: func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = backend.Close(closeCtx)
		},
	}, nil
}

var rootCmd = &cobra.Command{
	Use:   "coldroomctl",
	Short: "Maintenance commands for the cold room service",
	Long: `coldroomctl runs maintenance against the cold room store configured
through the same environment variables as the API (STORE_DRIVER, MONGODB_URI,
POSTGRES_DSN, COLDROOM_CATALOG, ...).`,
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update tables and indexes",
	RunE:  runMigrate,
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and maintain the event outbox",
}

var outboxPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Print the number of events awaiting delivery",
	RunE:  runOutboxPending,
}

var outboxPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete delivered events older than --older-than",
	RunE:  runOutboxPurge,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per cold room totals",
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Operation timeout")
	outboxPurgeCmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Minimum age of delivered events to delete")
	statsCmd.Flags().BoolVar(&asJSON, "json", false, "Print stats as JSON")

	outboxCmd.AddCommand(outboxPendingCmd)
	outboxCmd.AddCommand(outboxPurgeCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()
	return fn(ctx, e)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	return withEnv(cmd, func(ctx context.Context, e *env) error {
		start := time.Now()
		if err := e.migrate(ctx); err != nil {
			return fmt.Errorf("migrate %s: %w", e.driver, err)
		}
		e.logger.Info("Migration complete", "driver", e.driver, "duration", time.Since(start))
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date\n", e.driver)
		return nil
	})
}

func runOutboxPending(cmd *cobra.Command, _ []string) error {
	return withEnv(cmd, func(ctx context.Context, e *env) error {
		pending, err := e.outbox.CountPending(ctx)
		if err != nil {
			return fmt.Errorf("count pending events: %w", err)
		}
		e.metrics.SetOutboxPending(int(pending))
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", pending)
		return nil
	})
}

func runOutboxPurge(cmd *cobra.Command, _ []string) error {
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	return withEnv(cmd, func(ctx context.Context, e *env) error {
		deleted, err := e.outbox.DeletePublished(ctx, olderThan)
		if err != nil {
			return fmt.Errorf("purge delivered events: %w", err)
		}
		e.logger.Info("Outbox purged", "deleted", deleted, "olderThan", olderThan)
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d delivered events\n", deleted)
		return nil
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withEnv(cmd, func(ctx context.Context, e *env) error {
		queries := application.NewColdRoomQueryService(e.store, e.catalog, e.metrics, e.logger, application.DefaultConfig())
		stats, err := queries.Stats(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		return writeStatsTable(cmd.OutOrStdout(), stats)
	})
}

func writeStatsTable(out io.Writer, stats []application.ColdRoomStatsDTO) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tBOXES\tLOOSE\tPALLETIZED\tPALLETS\tWEIGHT KG\tVARIETIES\tLATEST °C")
	for _, s := range stats {
		latest := "-"
		if s.LatestTemperature != nil {
			latest = s.LatestTemperature.Temperature
			if s.LatestTemperature.OutOfRange {
				latest += " !"
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			s.ColdRoomID, s.TotalBoxes, s.LooseBoxes, s.PalletizedBoxes, s.Pallets, s.TotalWeightKg,
			formatVarieties(s.ByVariety), latest)
	}
	return w.Flush()
}

func formatVarieties(byVariety map[string]int) string {
	if len(byVariety) == 0 {
		return "-"
	}
	names := make([]string, 0, len(byVariety))
	for name := range byVariety {
		names = append(names, name)
	}
	sort.Strings(names)
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%s=%d", name, byVariety[name])
	}
	return out
}
