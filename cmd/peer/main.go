// Command peer runs one race participant outside Nakama. The host command owns the authoritative
// match state and publishes it over NATS; both commands mirror that state, execute transition
// commands and report the local player's arrivals.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"peakrace/internal/config"
	"peakrace/internal/peer"
	"peakrace/internal/ports/httpapi"
	"peakrace/internal/ports/natsbus"
)

func main() {
	app := makeapp()
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func peerFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "match", Value: "default", Usage: "Match id shared by all peers"},
		cli.StringFlag{Name: "player", Value: "", Usage: "Local player id; required"},
		cli.StringFlag{Name: "config", Value: config.DefaultPath, Usage: "Race config file"},
		cli.StringFlag{Name: "http", Value: ":8080", Usage: "HTTP listen address, empty to disable"},
		cli.StringFlag{Name: "nats", Value: natsbus.DefaultURL, EnvVar: "NATS_URL", Usage: "NATS server URL"},
		cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
	}
}

func makeapp() *cli.App {
	app := cli.NewApp()
	app.Name = "peer"
	app.Usage = "Multi-team race peer over NATS"

	app.Commands = []cli.Command{
		{
			Name:   "host",
			Usage:  "Run the match host and a local player",
			Flags:  peerFlags(),
			Action: func(c *cli.Context) error { return action(c, true) },
		},
		{
			Name:   "client",
			Usage:  "Join a hosted match as a player",
			Flags:  peerFlags(),
			Action: func(c *cli.Context) error { return action(c, false) },
		},
	}
	return app
}

func action(c *cli.Context, hosting bool) error {
	logger := peer.NewStdLogger(os.Stderr, c.Bool("debug"))
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("peer: .env not loaded: %v", err)
	}

	playerID := c.String("player")
	if playerID == "" {
		logger.Error("peer: --player is required")
		return cli.NewExitError("missing --player", 2)
	}

	cfg, err := config.Load(c.String("config"))
	if err == nil {
		err = cfg.ApplyEnv(config.EnvFromOS())
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error("peer: %v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, hosting, c.String("match"), playerID, c.String("nats"), c.String("http"), logger); err != nil {
		logger.Error("peer: %v", err)
		return err
	}
	return nil
}

func run(ctx context.Context, cfg *config.RaceConfig, hosting bool, matchID, playerID, url, httpAddr string, logger *peer.StdLogger) error {
	role := "client"
	if hosting {
		role = "host"
	}
	log := logger.WithFields(map[string]interface{}{"match": matchID, "player": playerID, "role": role})

	nc, err := natsbus.Connect(url, "peakrace-"+role)
	if err != nil {
		return err
	}
	defer nc.Drain()

	store, err := natsbus.NewPropertyStore(ctx, nc, matchID, log)
	if err != nil {
		return err
	}
	bus := natsbus.NewBus(nc, matchID, cfg.ArrivalTimeout(), log)

	var controls httpapi.HostControls
	if hosting {
		locator := config.NewCheckpointTable(cfg.Progression, cfg.Checkpoints)
		host := peer.NewHostRunner(cfg, locator, store, bus, log)
		controls = host
		go func() {
			if err := host.Serve(ctx, bus, bus); err != nil {
				log.Error("peer: host stopped: %v", err)
			}
		}()
	}

	client := peer.NewClientRunner(peer.ClientOptions{
		PlayerID:   playerID,
		Retries:    cfg.ArrivalRetries,
		RetryDelay: cfg.RetryDelay(),
	}, store, bus, bus, bus, peer.LogWorld{PlayerID: playerID, Logger: log}, log)

	if httpAddr != "" {
		srv := &http.Server{
			Addr:              httpAddr,
			Handler:           httpapi.NewServer(client.Mirror(), client, controls, log).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("peer: HTTP listening on %s", httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("peer: HTTP server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("peer: running")
	return client.Run(ctx)
}
