package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/api"
	"github.com/baegaepro/pillow-client/internal/app"
	"github.com/baegaepro/pillow-client/internal/config"
	"github.com/baegaepro/pillow-client/internal/server"
)

func main() {
	var configFile string
	var showConfig bool
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.BoolVar(&showConfig, "show-config", false, "Print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		app.SetupLogging(config.LogConfig{Level: "info", Format: "console"}, os.Stderr)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	app.SetupLogging(cfg.Log, os.Stderr)

	if showConfig {
		cfg.PrintConfigSummary()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiServer := api.NewRESTServer(cfg)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.Sandbox.Host, cfg.Sandbox.Port)
		if err := apiServer.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Sandbox server failed")
		}
	}()

	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.NATS.ClientName+"-sandbox"),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
				evt := log.Error().Err(err)
				if sub != nil {
					evt = evt.Str("subject", sub.Subject)
				}
				evt.Msg("NATS error")
			}),
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, transition feed disabled")
		} else {
			defer nc.Close()

			subscriber := server.NewTransitionSubscriber(nc, cfg.NATS.SubjectPrefix, apiServer.TransitionSink())

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("Transition subscriber stopped")
				}
			}()
		}
	} else {
		log.Info().Msg("NATS not configured, transition feed disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown sandbox server gracefully")
	}

	wg.Wait()

	log.Info().Msg("Sandbox stopped")
}
