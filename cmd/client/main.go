package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/isqad/livelook-meet/internal/client"
	"github.com/isqad/livelook-meet/internal/config"
	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus"
	"github.com/isqad/livelook-meet/internal/media"
	"github.com/isqad/livelook-meet/internal/rtc"
	"github.com/isqad/livelook-meet/internal/view"
)

func main() {
	app := &cli.App{
		Name:        "livelook-client",
		Usage:       "Headless call participant streaming media files",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a config file"},
			&cli.StringFlag{Name: "url", Usage: "relay websocket URL"},
			&cli.StringFlag{Name: "room", Usage: "room to join", Required: true},
			&cli.StringFlag{Name: "name", Usage: "display name"},
			&cli.StringFlag{Name: "front-video", Usage: "IVF (VP8) file played as the front camera"},
			&cli.StringFlag{Name: "back-video", Usage: "IVF (VP8) file played as the back camera"},
			&cli.StringFlag{Name: "audio", Usage: "OGG (Opus) file played as the microphone"},
			&cli.BoolFlag{Name: "announce", Usage: "tell everyone a meeting started"},
			&cli.DurationFlag{Name: "flip-interval", Usage: "flip the camera periodically, 0 disables"},
			&cli.BoolFlag{Name: "director", Usage: "keep one remote camera on program and watch camera health"},
		},
		Action: startClient,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("url") {
		cfg.Relay.URL = c.String("url")
	}
	cfg.Relay.Room = c.String("room")
	if c.IsSet("name") {
		cfg.Relay.DisplayName = c.String("name")
	}
	if c.IsSet("front-video") {
		cfg.Media.FrontVideo = c.String("front-video")
	}
	if c.IsSet("back-video") {
		cfg.Media.BackVideo = c.String("back-video")
	}
	if c.IsSet("audio") {
		cfg.Media.Audio = c.String("audio")
	}

	return cfg, nil
}

func startClient(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	core.InitLogger(cfg.Env)

	webrtcConf, err := config.NewWebRTCConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := media.NewController(
		&media.FileSource{
			FrontVideo: cfg.Media.FrontVideo,
			BackVideo:  cfg.Media.BackVideo,
			Audio:      cfg.Media.Audio,
		},
		media.Constraints{
			FacingMode: media.FacingFront,
			Width:      cfg.Media.Width,
			Height:     cfg.Media.Height,
			FrameRate:  cfg.Media.FrameRate,
		},
	)
	controller.OnPreview(func(s *media.CaptureStream) {
		log.Info().
			Str("service", "client").
			Str("facing", string(s.FacingMode)).
			Int("width", s.Settings.Width).
			Int("height", s.Settings.Height).
			Msg("preview")
	})

	if _, err := controller.Start(ctx); err != nil {
		return err
	}

	signaling, err := client.Dial(ctx, cfg.Relay.URL)
	if err != nil {
		controller.Stop()
		return err
	}

	session := rtc.NewSession(rtc.SessionParams{
		Signaler: signaling,
		Media:    controller,
		Factory: rtc.NewTransportFactory(rtc.TransportParams{
			EnabledCodecs: cfg.Peer.EnabledCodecs,
			Config:        webrtcConf,
		}),
		DisplayName:     cfg.Relay.DisplayName,
		DisconnectGrace: cfg.RTC.DisconnectGrace,
		AnnounceMeeting: c.Bool("announce"),
	})
	controller.SetBroadcaster(session)

	stage := rtc.NewStage(rtc.StageParams{
		Source:       session,
		StallTimeout: cfg.RTC.StallTimeout,
		AutoSwitch:   c.Bool("director"),
	})
	stage.OnSwitch(func(cam rtc.Camera) {
		log.Info().
			Str("service", "client").
			Str("participantID", string(cam.ID)).
			Str("displayName", cam.DisplayName).
			Msg("on program")
	})
	stage.OnStall(func(cam rtc.Camera) {
		log.Warn().
			Str("service", "client").
			Str("participantID", string(cam.ID)).
			Uint64("packets", cam.Stats.Packets).
			Uint64("lost", cam.Stats.Lost).
			Time("lastSeen", cam.LastSeen).
			Msg("camera timeout")
	})

	session.OnChange(func() {
		render(cfg.Relay.DisplayName, controller, session, stage)
	})

	// the socket outlives ctx so leave-room still goes out on shutdown
	listenCtx, stopListening := context.WithCancel(context.Background())
	defer stopListening()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(session.Run(gctx))
	})
	g.Go(func() error {
		err := signaling.Listen(listenCtx)
		if err == nil && gctx.Err() == nil {
			err = client.ErrClosed
		}
		return err
	})

	router := eventbus.NewRouter(signaling.Messages())
	session.Route(router)
	<-router.Start()
	defer router.Stop()
	g.Go(func() error {
		<-gctx.Done()
		if err := session.Leave(); err != nil {
			log.Warn().Err(err).Str("service", "client").Msg("leave")
		}
		stopListening()
		return nil
	})

	g.Go(func() error {
		return ignoreCanceled(stage.Run(gctx, rtc.DefaultHealthInterval))
	})

	if interval := c.Duration("flip-interval"); interval > 0 {
		g.Go(func() error {
			flipCamera(gctx, controller, interval)
			return nil
		})
	}

	if cfg.Metrics.Address != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Address)
		})
	}

	if err := session.Join(ctx, cfg.Relay.Room); err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	return g.Wait()
}

func render(displayName string, controller *media.Controller, session *rtc.Session, stage *rtc.Stage) {
	state := controller.State()
	local := view.LocalTile{
		DisplayName:  displayName,
		AudioEnabled: state.AudioEnabled,
		VideoEnabled: state.VideoEnabled,
	}
	if stream := controller.Stream(); stream != nil {
		local.Stream = stream.Describe()
	}

	tiles := view.Project(local, session.Participants(), view.Options{})

	program := ""
	if cam, ok := stage.Active(); ok {
		program = cam.DisplayName
	}

	log.Info().
		Str("service", "client").
		Int("tiles", len(tiles)).
		Int("columns", view.LayoutFor(len(tiles))).
		Str("program", program).
		Msg("layout")

	for _, t := range tiles {
		log.Debug().
			Str("service", "client").
			Str("participantID", string(t.ID)).
			Str("displayName", t.DisplayName).
			Bool("local", t.IsLocal).
			Bool("muted", t.IsMuted).
			Bool("videoOff", t.IsVideoOff).
			Msg("tile")
	}
}

func flipCamera(ctx context.Context, controller *media.Controller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := controller.FlipFacing(ctx); err != nil {
			log.Warn().Err(err).Str("service", "client").Msg("flip camera")
			continue
		}
		log.Info().
			Str("service", "client").
			Str("facing", string(controller.State().FacingMode)).
			Msg("camera flipped")
	}
}

func serveMetrics(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
