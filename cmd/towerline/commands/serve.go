package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sebas/towerline/internal/callmgr/api"
	"github.com/sebas/towerline/internal/callmgr/config"
	"github.com/sebas/towerline/internal/callmgr/domain"
	"github.com/sebas/towerline/internal/callmgr/events"
	"github.com/sebas/towerline/internal/callmgr/metrics"
	"github.com/sebas/towerline/internal/callmgr/orchestrator"
	"github.com/sebas/towerline/internal/logger"
	"github.com/sebas/towerline/internal/radiolink"
	"github.com/sebas/towerline/internal/radiolink/sipdialer"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the call manager and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger.Init(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	set := candidateSet(profile)
	device := profile.DeviceState()

	var radio radiolink.Radio
	var closer interface{ Close() error }
	if cfg.SIPGateway != "" {
		dialer, err := sipdialer.New(sipdialer.Config{
			Gateway:       cfg.SIPGateway,
			AdvertiseAddr: cfg.SIPAdvertiseAddr,
			Port:          cfg.SIPPort,
		})
		if err != nil {
			return fmt.Errorf("create SIP dialer: %w", err)
		}
		radio = dialer
		closer = dialer
		slog.Info("Using SIP radio backend", "gateway", cfg.SIPGateway)
	} else {
		radio = radiolink.NewSimRadio()
		slog.Info("Using simulated radio backend")
	}
	if closer != nil {
		defer closer.Close()
	}

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	orchCfg := orchestrator.Config{
		Candidates: set,
		Device:     &device,
		Radio:      radio,
		RadioOnHelper: &radiolink.SimRadioOnHelper{
			Set:   set,
			Delay: cfg.RadioPowerDelay,
		},
		Events:      events.NewSink(cfg.NodeID, nil),
		Metrics:     collector,
		DialTimeout: cfg.DialTimeout,
	}

	switch cfg.Domain {
	case "ps":
		orchCfg.Resolver = domain.NewLocalResolver(domain.DomainPS)
		orchCfg.Tracker = domain.LocalTracker{}
	case "cs":
		orchCfg.Resolver = domain.NewLocalResolver(domain.DomainCS)
		orchCfg.Tracker = domain.LocalTracker{}
	case "off":
	default:
		return fmt.Errorf("invalid domain mode %q (want ps, cs, or off)", cfg.Domain)
	}

	orch := orchestrator.New(orchCfg)

	server := api.NewServer(cfg.APIAddr, orch, set, collector, cfg.APISecret)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start API server: %w", err)
	}

	slog.Info("Towerline call manager started",
		"node_id", cfg.NodeID,
		"api_addr", cfg.APIAddr,
		"slots", len(set.Candidates()),
		"domain", cfg.Domain,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)

	if err := server.Stop(); err != nil {
		slog.Warn("API server stop", "error", err)
	}
	time.Sleep(200 * time.Millisecond)
	return nil
}
