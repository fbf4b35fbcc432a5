// Command f1telem listens for the game's UDP telemetry feed, decodes the
// player's car telemetry and serves it over HTTP, with optional CAN bus and
// serial dash mirrors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/f1-telemetry/internal/api"
	"github.com/banshee-data/f1-telemetry/internal/canbus"
	"github.com/banshee-data/f1-telemetry/internal/config"
	"github.com/banshee-data/f1-telemetry/internal/dash"
	"github.com/banshee-data/f1-telemetry/internal/monitoring"
	"github.com/banshee-data/f1-telemetry/internal/network"
	"github.com/banshee-data/f1-telemetry/internal/packet"
	"github.com/banshee-data/f1-telemetry/internal/session"
	"github.com/banshee-data/f1-telemetry/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a YAML config file")
	udpPort     = flag.Int("port", config.DefaultPort, "UDP port to listen on (overrides config)")
	listen      = flag.String("listen", ":8080", "HTTP listen address, empty to disable (overrides config)")
	pcapFile    = flag.String("pcap", "", "Replay a pcap/pcapng capture instead of opening a UDP socket")
	pace        = flag.Bool("pace", false, "Replay the capture with its recorded timing")
	inspect     = flag.Bool("inspect", false, "Print a summary of the -pcap capture and exit")
	canDevice   = flag.String("can-device", "", "Mirror telemetry to this CAN interface, e.g. vcan0 (overrides config)")
	dashPath    = flag.String("dash", "", "Mirror telemetry to a serial dash at this path (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// resubscribeInterval is how often a sink checks for a new connection after
// the session disconnected underneath it.
const resubscribeInterval = 500 * time.Millisecond

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("f1telem %s\n", version.String())
		return
	}

	cfg := config.Empty()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		log.Printf("Loaded configuration from %s", *configFile)
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlagOverrides(cfg, set)

	if *inspect {
		if *pcapFile == "" {
			log.Fatal("-inspect requires -pcap")
		}
		if err := inspectCapture(os.Stdout, *pcapFile, cfg.GetPort()); err != nil {
			log.Fatalf("failed to inspect capture: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, replayOptions{path: *pcapFile, pace: *pace}); err != nil {
		log.Printf("f1telem: %v", err)
		stop()
		os.Exit(1)
	}
}

// applyFlagOverrides copies explicitly set flags over the file configuration.
func applyFlagOverrides(cfg *config.Config, set map[string]bool) {
	if set["port"] {
		p := *udpPort
		cfg.Port = &p
	}
	if set["listen"] {
		l := *listen
		cfg.HTTPListen = &l
	}
	if set["can-device"] && *canDevice != "" {
		if cfg.CAN == nil {
			cfg.CAN = &config.CANConfig{}
		}
		cfg.CAN.Device = *canDevice
	}
	if set["dash"] && *dashPath != "" {
		if cfg.Dash == nil {
			cfg.Dash = &config.DashConfig{}
		}
		cfg.Dash.Path = *dashPath
	}
}

type replayOptions struct {
	path string
	pace bool
}

// run connects the session and serves until ctx is cancelled or, when
// replaying, the capture is exhausted. A bind failure is returned at once.
func run(ctx context.Context, cfg *config.Config, replay replayOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessCfg := session.Config{
		BindAddress:      cfg.GetBindAddress(),
		RcvBuf:           cfg.GetRcvBuf(),
		QueueSize:        cfg.GetQueueSize(),
		SubscriberBuffer: cfg.GetSubscriberBuffer(),
		StatsInterval:    cfg.GetStatsInterval(),
		OnTerminated: func(err error) {
			if replay.path != "" && errors.Is(err, io.EOF) {
				log.Printf("Replay of %s complete", replay.path)
				cancel()
				return
			}
			log.Printf("Telemetry listener terminated: %v; POST /api/session/connect to reconnect", err)
		},
	}
	if cfg.GetDecodeCorners() {
		sessCfg.Decode = packet.DecodeWithCorners
	}
	if replay.path != "" {
		sessCfg.SocketFactory = network.NewPCAPSocketFactory(replay.path, replay.pace)
		log.Printf("Replaying %s (paced: %t)", replay.path, replay.pace)
	}

	sess := session.New(sessCfg)
	if err := sess.Connect(cfg.GetPort()); err != nil {
		return err
	}
	defer func() {
		if err := sess.Disconnect(); err != nil {
			log.Printf("failed to disconnect session: %v", err)
		}
		st := sess.Stats()
		log.Printf("Final stats: %d received, %d decoded, %d foreign, %d malformed, %d dropped",
			st.Received, st.Decoded, st.Foreign, st.Malformed, st.Dropped)
	}()

	var wg sync.WaitGroup

	if cfg.CAN != nil {
		sink, err := canbus.Dial(ctx, cfg.GetCANNetwork(), cfg.CAN.Device)
		if err != nil {
			return err
		}
		defer sink.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			forward(ctx, sess, "CAN", sink.Run)
		}()
	}

	if cfg.Dash != nil {
		sink, err := dash.Open(cfg.Dash.Path, dash.PortOptions{
			BaudRate: cfg.Dash.BaudRate,
			DataBits: cfg.Dash.DataBits,
			StopBits: cfg.Dash.StopBits,
			Parity:   cfg.Dash.Parity,
		})
		if err != nil {
			return err
		}
		defer sink.Close()
		if err := sink.SetSpeedUnits(cfg.Dash.Units); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			forward(ctx, sess, "dash", sink.Run)
		}()
	}

	if addr := cfg.GetHTTPListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, addr, sess, cfg.GetPort())
		}()
	}

	<-ctx.Done()
	log.Printf("Shutting down")
	// Closing the session ends every subscriber stream, which releases the sinks.
	if err := sess.Disconnect(); err != nil {
		log.Printf("failed to disconnect session: %v", err)
	}
	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}

// forward feeds a sink from the session, picking up a new stream whenever the
// session is reconnected, until ctx is done or the sink fails.
func forward(ctx context.Context, sess *session.Session, name string, sink func(context.Context, <-chan packet.CarTelemetryData) error) {
	for ctx.Err() == nil {
		id, records := sess.TelemetryStream()
		if id == "" {
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeInterval):
			}
			continue
		}
		err := sink(ctx, records)
		sess.Unsubscribe(id)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("%s sink stopped: %v", name, err)
			return
		}
	}
}

func serveHTTP(ctx context.Context, addr string, sess *session.Session, defaultPort int) {
	mux := api.NewServer(sess, defaultPort).ServeMux()
	sess.AttachAdminRoutes(mux)

	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("HTTP server error: %v", err)
		}
	}()
	log.Printf("HTTP server listening on %s", addr)

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
