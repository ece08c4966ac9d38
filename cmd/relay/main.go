package main

import (
	"context"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/isqad/livelook-meet/internal/config"
	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus"
	"github.com/isqad/livelook-meet/internal/notify"
	"github.com/isqad/livelook-meet/internal/relay"
	"github.com/isqad/livelook-meet/internal/ws"
)

func main() {
	app := &cli.App{
		Name:        "livelook-relay",
		Usage:       "Signaling relay for mesh video calls",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a config file",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment: either 'development' or 'production'",
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen IP and port, example: ':80' for listen on 0.0.0.0:80",
			},
			&cli.BoolFlag{
				Name:  "single-node",
				Usage: "keep rooms and message fan-out in memory instead of redis",
			},
		},
		Action: startRelay,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startRelay(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("env") {
		cfg.Env = core.Environment(c.String("env"))
		if err := cfg.Env.Validate(); err != nil {
			return err
		}
	}
	if c.IsSet("address") {
		cfg.Relay.Address = c.String("address")
	}

	var closers []func() error

	params := relay.HubParams{}
	var subscriber eventbus.Subscriber

	if c.Bool("single-node") {
		bus := eventbus.NewMemory()
		params.Store = relay.NewMemoryRoomStore()
		params.Publisher = bus
		subscriber = bus
	} else {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return err
		}
		closers = append(closers, rdb.Close)

		bus := eventbus.RedisPubSub(rdb)
		params.Store = relay.NewRedisRoomStore(rdb)
		params.Publisher = bus
		subscriber = bus
	}

	if cfg.Nats.URL != "" {
		publisher, err := notify.NewPublisher(cfg.Nats.URL)
		if err != nil {
			return err
		}
		closers = append(closers, publisher.Close)
		params.Notifier = publisher
	}

	if cfg.Database.DSN != "" {
		db, err := sqlx.Connect("pgx", cfg.Database.DSN)
		if err != nil {
			return err
		}
		closers = append(closers, db.Close)
		params.Meetings = core.NewMeetingsRepository(db)
	}

	wsApp := ws.New(ws.WsAppOptions{
		Env:        cfg.Env,
		Address:    cfg.Relay.Address,
		Hub:        relay.NewHub(params),
		Subscriber: subscriber,
		OnShutdown: func() {
			for _, closeFn := range closers {
				if err := closeFn(); err != nil {
					log.Error().Err(err).Str("service", "relay").Msg("close dependency")
				}
			}
		},
	})

	return wsApp.Start()
}
