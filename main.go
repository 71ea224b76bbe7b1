package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/CristiGvl/picoDisks/api"
	"github.com/CristiGvl/picoDisks/internal/bytesize"
	"github.com/CristiGvl/picoDisks/internal/config"
	"github.com/CristiGvl/picoDisks/internal/devsvc"
	"github.com/CristiGvl/picoDisks/internal/metrics"
	"github.com/CristiGvl/picoDisks/internal/monitor"
	"github.com/CristiGvl/picoDisks/internal/platform"
	"github.com/CristiGvl/picoDisks/internal/segment"
	"github.com/CristiGvl/picoDisks/internal/topology"
	"github.com/CristiGvl/picoDisks/internal/usage"
	"github.com/CristiGvl/picoDisks/internal/watch"
)

var (
	cfgFile    string
	bind       string
	port       int
	interval   time.Duration
	logLevel   string
	outputJSON bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "picodisks",
		Short: "Drive and partition manager with a live topology API",
		Long: `picodisks keeps a live view of the host's drives and partitions and
serves it, together with the usual partition operations, over HTTP.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.Flags().StringVar(&bind, "bind", "", "IP address to bind the server to")
	root.Flags().IntVar(&port, "port", 0, "Port to run the server on")
	root.Flags().DurationVar(&interval, "poll-interval", 0, "device poll interval")

	drives := &cobra.Command{
		Use:   "drives",
		Short: "Print the current drive layout and exit",
		RunE:  runDrives,
	}
	drives.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), metrics.Version)
		},
	}

	root.AddCommand(drives, version)
	return root
}

// loadConfig layers command line flags over the file and environment
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("bind") {
		cfg.Bind = bind
	}
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = interval
	}
	if flags.Changed("log-level") {
		l, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = l
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) zerolog.Logger {
	var l zerolog.Logger
	if cfg.LogFormat == config.FormatJSON {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	return l.Level(cfg.LogLevel).With().Timestamp().Logger()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	// Validate platform support
	if err := platform.ValidateSupport(); err != nil {
		log.Error().Err(err).Msg("Platform validation failed")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	// Without the device service the API still serves, reporting not connected
	client, err := devsvc.Connect(ctx)
	if err != nil {
		log.Error().Err(err).Msg("device service unavailable")
		client = nil
	}

	builder := topology.NewBuilder(client, usage.NewReader(),
		topology.WithLogger(log.With().Str("component", "topology").Logger()),
		topology.WithMetrics(m),
	)

	var (
		events   <-chan watch.Event
		operator devsvc.Operator
	)
	if client != nil {
		defer client.Close()
		operator = client

		stream := watch.New(client,
			watch.WithInterval(cfg.PollInterval),
			watch.WithLogger(log.With().Str("component", "watch").Logger()),
			watch.WithMetrics(m),
		).Start(ctx)
		defer stream.Close()
		events = stream.C
	}

	mon := monitor.New(builder, events,
		monitor.WithLogger(log.With().Str("component", "monitor").Logger()),
		monitor.WithMetrics(m),
	)
	go func() {
		if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("monitor stopped")
		}
	}()

	opts := []api.Option{api.WithLogger(log)}
	if m != nil {
		opts = append(opts, api.WithMetrics(m))
	}
	server := api.NewServer(mon, operator, opts...)

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		if err := server.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	log.Info().Str("addr", cfg.Addr()).Str("backend", platform.Describe(platform.GetOS()).Backend).Msg("Starting picoDisks server")
	return server.Start(cfg.Addr())
}

func runDrives(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	client, err := devsvc.Connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	drives, err := topology.NewBuilder(client, usage.NewReader(), topology.WithLogger(log)).Build(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(drives)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, d := range drives {
		table := d.PartitionTableType
		if table == "" {
			table = "none"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.PrettyName(), bytesize.Pretty(d.Size, false), table, d.BlockPath)
		for _, s := range segment.Segments(d) {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", s.Label, bytesize.Pretty(s.Size, false), s.PartitionType, s.Name)
		}
	}
	return w.Flush()
}
