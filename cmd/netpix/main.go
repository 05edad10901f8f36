package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netpix/netpix/pkg/api"
	"github.com/netpix/netpix/pkg/capture"
	"github.com/netpix/netpix/pkg/config"
	"github.com/netpix/netpix/pkg/eventlog"
	"github.com/netpix/netpix/pkg/logger"
	"github.com/netpix/netpix/pkg/metrics"
	"github.com/netpix/netpix/pkg/packet"
	"github.com/netpix/netpix/pkg/session"
	"github.com/netpix/netpix/pkg/sslkeylog"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: netpix <run|list> [options]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand(os.Args[2:])
	case "list":
		listCommand()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (want run or list)\n", os.Args[1])
		os.Exit(1)
	}
}

func listCommand() {
	names, err := capture.ListInterfaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to enumerate interfaces: %v\n", err)
		os.Exit(1)
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	cfg := config.RegisterFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: netpix run [options]\n\nOptions:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}
	cfg.Finalize()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	log.Info().Str("flags", logFlags.String()).Msg("starting netpix")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	metricsRegistry := metrics.NewRegistry()
	hub := session.NewHub(0).WithMetrics(metricsRegistry)

	if keylogPath := os.Getenv("SSLKEYLOGFILE"); keylogPath != "" {
		watcher := sslkeylog.NewWatcher(keylogPath)
		go watcher.Start(ctx)
		log.Info().Str("path", keylogPath).Msg("tailing SSL keylog file")
	}

	for _, path := range cfg.Files {
		reader, err := capture.OpenOfflinePcap(path)
		if err != nil {
			log.Error().Str("file", path).Err(err).Msg("failed to open PCAP file")
			os.Exit(1)
		}
		startPipeline(ctx, log, hub, metricsRegistry, cfg, capture.NewFileSource(path, reader))
	}

	for _, name := range cfg.Interfaces {
		reader, err := capture.OpenLivePcap(name, cfg.Promisc, 65536)
		if err != nil {
			log.Error().Str("interface", name).Err(err).Msg("failed to open interface")
			os.Exit(1)
		}
		startPipeline(ctx, log, hub, metricsRegistry, cfg, capture.NewInterfaceSource(name, cfg.Promisc, reader))
	}

	for _, path := range cfg.LogFiles {
		startEventLogTail(ctx, log, hub, metricsRegistry, cfg, path)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	server := api.NewServer(hub)
	if err := server.Start(addr); err != nil {
		log.Error().Err(err).Msg("failed to start HTTP server")
		os.Exit(1)
	}
	log.Info().Str("address", addr).Msg("listening")

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("error during HTTP server shutdown")
	}

	log.Info().Msg("graceful shutdown complete")
}

// startPipeline registers source's ring with hub and runs its capture
// pipeline in the background until ctx is canceled or the source ends.
func startPipeline(ctx context.Context, log *logger.Logger, hub *session.Hub, metricsRegistry *metrics.Registry, cfg *config.Config, source capture.Source) {
	if cfg.CaptureFilter != "" {
		if err := source.ApplyFilter(cfg.CaptureFilter); err != nil {
			log.Error().Str("source", source.Key().String()).Err(err).Msg("invalid capture filter")
			os.Exit(1)
		}
	}

	ring := capture.NewRing(cfg.BufferSize, cfg.MaxPacketAge)
	hub.RegisterSource(source.Key(), ring)

	pipeline := capture.NewPipeline(source, ring, hub, cfg.MessageInterval).WithMetrics(metricsRegistry)

	go func() {
		defer source.Close()
		if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Str("source", source.Key().String()).Err(err).Msg("pipeline terminated")
		}
	}()
}

// startEventLogTail registers path's event-log-derived source and runs its
// tailer, feeding synthesized packets into the shared ring/hub the same
// way a capture pipeline does.
func startEventLogTail(ctx context.Context, log *logger.Logger, hub *session.Hub, metricsRegistry *metrics.Registry, cfg *config.Config, path string) {
	key := capture.SourceKey{Kind: capture.SourceFile, Name: path}
	ring := capture.NewRing(cfg.BufferSize, cfg.MaxPacketAge)
	hub.RegisterSource(key, ring)

	tailer := eventlog.NewTailer(path)
	out := make(chan []packet.Packet, 16)

	go func() {
		if err := tailer.Run(ctx, out); err != nil && ctx.Err() == nil {
			log.Error().Str("source", path).Err(err).Msg("event-log tailer terminated")
		}
	}()

	go func() {
		lastStats := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-out:
				if !ok {
					return
				}
				for _, p := range batch {
					hub.Broadcast(key, p)
					discharged, overwrote := ring.Push(p)
					if metricsRegistry != nil {
						label := key.String()
						if discharged > 0 {
							metricsRegistry.PacketsDischarged.WithLabelValues(label).Add(float64(discharged))
						}
						if overwrote {
							metricsRegistry.PacketsOverwritten.WithLabelValues(label).Inc()
						}
						metricsRegistry.RingSize.WithLabelValues(label).Set(float64(ring.Len()))
					}
				}
				if cfg.MessageInterval > 0 && time.Since(lastStats) >= cfg.MessageInterval {
					d, o := ring.Stats()
					hub.BroadcastStats(d, o)
					lastStats = time.Now()
				}
			}
		}
	}()
}
