package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guildrelay/guildrelay/common/logging"
	"github.com/guildrelay/guildrelay/common/messaging"
	natsclient "github.com/guildrelay/guildrelay/common/messaging/nats"
	"github.com/guildrelay/guildrelay/common/relaystats"
	"github.com/guildrelay/guildrelay/internal/config"
	"github.com/guildrelay/guildrelay/internal/filter"
	"github.com/guildrelay/guildrelay/internal/gateway"
	"github.com/guildrelay/guildrelay/internal/normalizer"
	"github.com/guildrelay/guildrelay/internal/pipeline"
	"github.com/guildrelay/guildrelay/internal/relay"
	"github.com/guildrelay/guildrelay/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the gateway and relay events",
	Long: `Opens the bot's gateway session and forwards every accepted event to
the configured webhook until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func instanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func runRelay(cmd *cobra.Command, _ []string) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	logger := newLogger(c)
	logging.SetDefault(logger)
	logger.Info("starting guildrelay",
		"version", version,
		"log_level", c.Logging.Level,
		"message_cache_size", c.Discord.MessageCacheSize,
	)
	if cfgFile != "" {
		logger.Info("loaded configuration", "config_path", cfgFile)
	}
	if c.Relay.URL == "" {
		logger.Warn("relay URL is not configured, events will be dropped")
	}

	// Interface-typed so a failed connect leaves a true nil for readiness.
	var bus messaging.Client
	relayOpts := []relay.Option{relay.WithLogger(logger)}
	if c.NATS.Enabled {
		nc, err := connectNATS(c, logger)
		if err != nil {
			logger.Warn("failed to connect to NATS, envelope mirroring disabled", logging.Error(err))
		} else {
			bus = nc
			relayOpts = append(relayOpts, relay.WithMirror(nc, c.NATS.SubjectPrefix))
			logger.Info("mirroring envelopes to NATS",
				"url", c.NATS.URL,
				"subject", messaging.AllEventsSubject(c.NATS.SubjectPrefix),
			)
		}
	}

	serviceOpts := []pipeline.ServiceOption{pipeline.WithServiceLogger(logger)}
	var collector *relaystats.Collector
	if c.Redis.Enabled {
		id := instanceID()
		statsClient, err := relaystats.NewClient(c.Redis.URL, id)
		if err != nil {
			logger.Warn("failed to initialize relay stats, delivery counters will not be collected", logging.Error(err))
		} else {
			collector = relaystats.NewCollector(statsClient, c.Stats.FlushInterval, logger.Logger)
			serviceOpts = append(serviceOpts, pipeline.WithRecorder(collector))
			logger.Info("relay stats enabled",
				"flush_interval", c.Stats.FlushInterval.String(),
				"instance", id,
			)
		}
	}

	dispatcher := relay.NewDispatcher(relay.Config{
		URL:           c.Relay.URL,
		Timeout:       c.Relay.Timeout,
		UserAgent:     c.Relay.UserAgent,
		SigningSecret: c.Relay.SigningSecret,
	}, relayOpts...)

	gw, err := gateway.New(gateway.Config{
		Token:            c.Discord.Token,
		MessageCacheSize: c.Discord.MessageCacheSize,
		GuildID:          c.Discord.GuildID,
		RelayURL:         c.Relay.URL,
	}, nil, logger)
	if err != nil {
		return err
	}

	norm := normalizer.New(gw.Resolver(), normalizer.WithLogger(logger))
	p := pipeline.New(filter.Scope{GuildID: c.Discord.GuildID}, norm, logger)
	svc := pipeline.NewService(p, dispatcher, serviceOpts...)
	gw.SetHandler(svc)

	var srv *http.Server
	if c.Server.Enabled {
		srv = &http.Server{
			Addr:         fmt.Sprintf(":%d", c.Server.Port),
			Handler:      server.NewRouter(server.NewHealthHandler(gw, bus)),
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
			IdleTimeout:  c.Server.IdleTimeout,
		}
		go func() {
			logger.Info("ops server listening", "port", c.Server.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server failed", logging.Error(err))
			}
		}()
	}

	if err := gw.Open(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	if err := gw.Close(); err != nil {
		logger.Warn("failed to close gateway session", logging.Error(err))
	}
	if !svc.Wait(c.Relay.ShutdownGrace) {
		logger.Warn("in-flight deliveries still running at shutdown", "grace", c.Relay.ShutdownGrace.String())
	}
	if collector != nil {
		collector.Stop()
	}
	if bus != nil {
		if err := bus.Drain(); err != nil {
			logger.Warn("failed to drain NATS connection", logging.Error(err))
		}
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server forced to shutdown", logging.Error(err))
		}
	}
	logger.Info("guildrelay stopped")
	return nil
}

func connectNATS(c *config.Config, logger *logging.Logger) (*natsclient.Client, error) {
	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = c.NATS.URL
	natsCfg.Name = c.NATS.Name
	natsCfg.MaxReconnects = c.NATS.MaxReconnects
	natsCfg.ReconnectWait = c.NATS.ReconnectWait
	natsCfg.Logger = logger.Logger
	return natsclient.NewClient(natsCfg)
}
