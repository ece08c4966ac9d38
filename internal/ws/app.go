package ws

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/isqad/melody"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus"
	"github.com/isqad/livelook-meet/internal/relay"
)

// WsAppOptions is options of the relay application
type WsAppOptions struct {
	Env        core.Environment
	Address    string
	Hub        *relay.Hub
	Subscriber eventbus.Subscriber
	// OnShutdown runs after the http server stopped accepting connections
	OnShutdown func()

	websocket *melody.Melody
}

// WsApp is the signaling relay: one websocket per participant
type WsApp struct {
	WsAppOptions
}

func New(options WsAppOptions) *WsApp {
	options.websocket = melody.New()
	options.websocket.Config.MaxMessageSize = 200 * 1024 // 200K, SDP with many candidates

	app := &WsApp{
		options,
	}
	return app
}

func (app *WsApp) Start() error {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{}, 1)

	core.InitLogger(app.Env)
	router := app.Router()

	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	server := &http.Server{
		Addr:              app.Address,
		Handler:           router,
		ReadHeaderTimeout: 1 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Warn().Str("service", "ws").Msg("received signal to terminate the server")

		// closing the sockets runs the disconnect handlers, peers get user-left
		if err := app.websocket.Close(); err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("close websockets")
		}
		if app.OnShutdown != nil {
			app.OnShutdown()
		}

		log.Info().Str("service", "ws").Msg("all services are stopped")
		close(done)
	})

	go func() {
		<-quit
		log.Warn().Str("service", "ws").Msg("the server is going shutting down")

		// Wait 20 seconds for close http connections
		waitIdleConnCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(waitIdleConnCtx); err != nil {
			log.Fatal().Err(err).Msg("can't gracefully shutdown the server")
		}
	}()

	log.Info().Str("service", "ws").Str("address", app.Address).Msg("relay listening")

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server has been closed immediatelly")
	}

	<-done
	log.Info().Str("service", "ws").Msg("server stopped")

	return nil
}

// Router is function for construct http router
func (app *WsApp) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	app.websocket.HandleConnect(ConnectHandler(app.Hub))
	app.websocket.HandleDisconnect(DisconnectHandler(app.Hub))
	app.websocket.HandleMessage(HandleMessage(app.Hub))
	app.websocket.HandleError(func(s *melody.Session, err error) {
		log.Error().Err(err).Str("service", "ws").Msg("error in websocket session")
	})

	r.Get("/ws", WsHandler(app.Subscriber, app.websocket))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
