package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/isqad/livelook-meet/internal/config"
	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/notify"
)

func main() {
	app := &cli.App{
		Name:        "livelook-notifier",
		Usage:       "Meeting notifications service",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a config file",
			},
			&cli.StringFlag{
				Name:  "natsAddr",
				Value: "nats://127.0.0.1:10222",
				Usage: "Address to connect to NATS server",
			},
		},
		Action: start,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func start(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	core.InitLogger(cfg.Env)

	natsURL := c.String("natsAddr")
	if !c.IsSet("natsAddr") && cfg.Nats.URL != "" {
		natsURL = cfg.Nats.URL
	}

	daemon, err := notify.New(natsURL, notify.LogHandler)
	if err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		daemon.Shutdown()
	}()

	return daemon.Run()
}
