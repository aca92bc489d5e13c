package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/baderanaas/hushlan/pkg/chat"
	"github.com/baderanaas/hushlan/pkg/config"
	"github.com/baderanaas/hushlan/pkg/discovery"
)

var log = logging.Logger("lanchat")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lanchat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	name := flag.StringP("name", "n", "", "Display name")
	host := flag.String("host", "", "Address to listen on")
	port := flag.IntP("port", "p", 0, "Port to listen on")
	backend := flag.String("discovery", "", "Discovery backend: zeroconf, libp2p or none")
	downloads := flag.String("downloads", "", "Directory for received images and videos")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	peers := flag.StringArray("peer", nil, "Peer to add at startup as host:port (repeatable)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if *name != "" {
		cfg.Name = *name
	} else if cfg.Name == "" && flag.NArg() > 0 {
		cfg.Name = flag.Arg(0)
	}
	if *host != "" {
		cfg.Host = *host
	}
	if flag.CommandLine.Changed("port") {
		cfg.Port = *port
	}
	if *backend != "" {
		cfg.Discovery.Backend = *backend
	}
	if *downloads != "" {
		cfg.DownloadDir = *downloads
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.SetLogLevel("*", "error"); err != nil {
		return err
	}
	for _, sub := range []string{"lanchat", "chat", "protocol", "discovery"} {
		if err := logging.SetLogLevel(sub, cfg.LogLevel); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := chat.NewNode(cfg, chat.NewTerminalSink(os.Stdout, cfg.DownloadDir))
	if err != nil {
		return err
	}
	defer func() {
		if err := node.Close(); err != nil {
			log.Warnw("error closing node", "err", err)
		}
	}()
	node.Start()
	for _, addr := range *peers {
		if err := node.Connect(addr); err != nil {
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, node)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Discovery.Backend != config.BackendNone {
		svc, err := discovery.New(cfg.Discovery.Backend, discovery.Options{
			Instance:       node.InstanceID(),
			Service:        cfg.Discovery.Service,
			Domain:         cfg.Discovery.Domain,
			Port:           node.Port(),
			BrowseInterval: cfg.Discovery.BrowseInterval.Duration,
		})
		if err != nil {
			return err
		}
		events, err := svc.Start(ctx)
		if err != nil {
			log.Warnw("discovery unavailable, continuing without it", "backend", cfg.Discovery.Backend, "err", err)
		} else {
			defer func() {
				if err := svc.Close(); err != nil {
					log.Warnw("error closing discovery", "err", err)
				}
			}()
			go node.ConsumeDiscovery(ctx, events)
		}
	}

	cliDone := make(chan error, 1)
	go func() { cliDone <- node.RunCLI(ctx, os.Stdin) }()

	select {
	case err := <-cliDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-ctx.Done():
	}
	return nil
}

func serveMetrics(addr string, node *chat.Node) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(node.Metrics().Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnw("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	log.Infow("serving metrics", "addr", addr)
	return srv
}
