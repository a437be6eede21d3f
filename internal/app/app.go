package app

import (
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/backend"
	"github.com/baegaepro/pillow-client/internal/bridge"
	"github.com/baegaepro/pillow-client/internal/config"
	"github.com/baegaepro/pillow-client/internal/device"
	"github.com/baegaepro/pillow-client/internal/events"
	"github.com/baegaepro/pillow-client/internal/flow"
	"github.com/baegaepro/pillow-client/internal/integration"
	"github.com/baegaepro/pillow-client/internal/session"
	"github.com/baegaepro/pillow-client/internal/storage"
	"github.com/baegaepro/pillow-client/pkg/crypto"
)

// App is a fully wired client: stores, REST clients, bridge and flow controller
type App struct {
	Config    *config.Config
	Bridge    *bridge.Adapter
	Store     storage.Store
	Sessions  *session.Store
	API       *backend.Client
	Device    *device.Client
	Publisher events.Publisher
	Flow      *flow.Controller
}

// New wires an App for cfg on top of host; a nil host runs without hardware.
// onUnauthenticated runs whenever the session ends and a new login is needed.
func New(cfg *config.Config, host bridge.Host, onUnauthenticated func()) (*App, error) {
	kv, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	var opts []session.Option
	if cfg.Storage.SealKey != "" {
		key, err := crypto.ParseKey(cfg.Storage.SealKey)
		if err != nil {
			kv.Close()
			return nil, err
		}
		opts = append(opts, session.WithSealKey(key))
	}
	sessions := session.New(kv, opts...)

	var clientOpts []backend.Option
	if onUnauthenticated != nil {
		clientOpts = append(clientOpts, backend.WithUnauthenticatedHandler(onUnauthenticated))
	}

	a := &App{
		Config:    cfg,
		Bridge:    bridge.New(host),
		Store:     kv,
		Sessions:  sessions,
		API:       backend.NewClient(cfg.API.BaseURL, cfg.API.Timeout, sessions, clientOpts...),
		Device:    device.NewClient(cfg.Device.BaseURL, cfg.Device.Timeout),
		Publisher: Publishers(cfg),
	}
	a.Flow = flow.NewController(a.API, a.Device, a.Bridge, a.Sessions, a.Publisher, flow.OptionsFromConfig(cfg))

	log.Info().
		Str("api", cfg.API.BaseURL).
		Str("store", cfg.Storage.Driver).
		Bool("bridge", a.Bridge.Available()).
		Msg("Client wired")
	return a, nil
}

// Publishers connects the configured transition sinks.
// A sink that cannot connect is skipped so registration still works offline.
func Publishers(cfg *config.Config) events.Publisher {
	var pubs events.Multi

	if cfg.NATS.URL != "" {
		p, err := events.ConnectNATS(cfg.NATS)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without it")
		} else {
			pubs = append(pubs, p)
		}
	}

	if cfg.MQTT.Broker != "" {
		p, err := events.ConnectMQTT(cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to MQTT broker, continuing without it")
		} else {
			pubs = append(pubs, p)
		}
	}

	if cfg.Webhook.URL != "" {
		pubs = append(pubs, integration.NewWebhookPublisher(cfg.Webhook))
	}

	if len(pubs) == 0 {
		return events.Nop{}
	}
	return pubs
}

// Close releases the store and the event connections
func (a *App) Close() error {
	return errors.Join(a.Publisher.Close(), a.Store.Close())
}

// SetupLogging points the global logger at out with the configured level
func SetupLogging(cfg config.LogConfig, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		if _, isLevelWriter := out.(zerolog.LevelWriter); !isLevelWriter {
			out = zerolog.ConsoleWriter{Out: out}
		}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
