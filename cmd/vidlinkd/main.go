package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lanikai/vidlink"
	"github.com/lanikai/vidlink/internal/codec"
	"github.com/lanikai/vidlink/internal/logging"
	"github.com/lanikai/vidlink/internal/source"
)

var log = logging.DefaultLogger.WithTag("vidlinkd")

// How long the decoder may take to drain after the link closes.
const drainTimeout = 5 * time.Second

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}

	cfg, err := loadConfig(flag.CommandLine)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := logging.Configure(cfg.Log); err != nil {
		log.Fatalf("%v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cfg *daemonConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := source.OpenSource(cfg.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	surface, closeSurface, err := openSurface(cfg.Output)
	if err != nil {
		return err
	}
	defer closeSurface()

	mgr, err := vidlink.NewManager(vidlink.Config{
		Width:     cfg.Width,
		Height:    cfg.Height,
		FrameRate: cfg.FrameRate,
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := mgr.RegisterMetrics(reg); err != nil {
		return err
	}

	ended := make(chan struct{}, 1)
	listener := vidlink.ListenerFuncs{
		Started: func() { log.Info("Video is up") },
		Error:   func() { log.Warn("Decoder failed") },
		Ended: func() {
			select {
			case ended <- struct{}{}:
			default:
			}
		},
	}

	if err := mgr.Start(surface, listener); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	linkCtx, closeLink := context.WithCancel(ctx)

	g.Go(func() error {
		defer closeLink()
		err := src.Run(linkCtx, mgr.Feed)
		log.Info("Video link closed")

		// Drop the end of a previous session, if any.
		select {
		case <-ended:
		default:
		}
		mgr.Stop(listener)
		select {
		case <-ended:
		case <-time.After(drainTimeout):
			log.Warn("Decoder did not drain within %v", drainTimeout)
		}
		return err
	})

	if cfg.MetricsAddress != "" {
		server := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			<-linkCtx.Done()
			return server.Shutdown(context.Background())
		})
		g.Go(func() error {
			log.Info("Serving metrics on %s", cfg.MetricsAddress)
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

func openSurface(output string) (codec.Surface, func(), error) {
	if output == "" {
		discard := codec.SurfaceFunc(func(data []byte, info codec.BufferInfo) error {
			return nil
		})
		return discard, func() {}, nil
	}

	fs, err := codec.NewFileSurface(output)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {
		log.Info("Wrote %d access units to %s", fs.Frames(), output)
		fs.Close()
	}, nil
}
