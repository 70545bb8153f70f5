package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/cattledb/cattledb/internal/client"
	"github.com/cattledb/cattledb/internal/config"
	_ "github.com/cattledb/cattledb/internal/engine/bigtable"
	_ "github.com/cattledb/cattledb/internal/engine/sqlite"
	"github.com/cattledb/cattledb/internal/signals"
)

var (
	// Version is overridden by ldflags at build time.
	Version = "0.1.0"

	configPath     string
	jsonOutput     bool
	metricsStdout  bool
	connectTimeout time.Duration

	appConfig config.AppConfig

	rootCtx    context.Context
	rootCancel context.CancelFunc

	meterProvider *sdkmetric.MeterProvider
)

var rootCmd = &cobra.Command{
	Use:           "cattledb",
	Short:         "Fast timeseries database for multiple metrics per key",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg
		if metricsStdout {
			setupMetrics()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if meterProvider != nil {
			if err := meterProvider.Shutdown(context.Background()); err != nil {
				log.Printf("metrics shutdown: %v", err)
			}
		}
	},
}

// setupMetrics installs a stdout exporter so store operation counters and
// latencies print when the command exits.
func setupMetrics() {
	exporter, err := stdoutmetric.New()
	if err != nil {
		log.Printf("stdout metric exporter: %v", err)
		return
	}
	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(meterProvider)
}

// openClient connects with exponential backoff so a starting emulator or
// database gets time to come up. When serviceInit is set the persisted
// definitions are restored after connecting.
func openClient(ctx context.Context, serviceInit bool) (*client.Client, error) {
	opts := appConfig.StoreOptions()
	if metricsStdout {
		opts.Hub = signals.NewHub()
	}
	var c *client.Client
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(connectTimeout),
	), ctx)
	err := backoff.Retry(func() error {
		var err error
		c, err = client.Connect(ctx, opts)
		return err
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s backend: %w", appConfig.Engine.Backend, err)
	}
	if serviceInit {
		if err := c.ServiceInit(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default: ./cattledb.yaml, /etc/cattledb/cattledb.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&metricsStdout, "metrics", false,
		"print OpenTelemetry metrics on exit")
	rootCmd.PersistentFlags().DurationVar(&connectTimeout, "connect-timeout",
		30*time.Second, "total time to retry the initial backend connection")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			_ = outputJSON(map[string]string{"version": Version})
			return
		}
		fmt.Printf("cattledb version %s\n", Version)
	},
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
