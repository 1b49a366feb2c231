package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	router "github.com/dkeye/VideoRoom/internal/adapters/http"
	"github.com/dkeye/VideoRoom/internal/adapters/console"
	"github.com/dkeye/VideoRoom/internal/adapters/media"
	"github.com/dkeye/VideoRoom/internal/adapters/rtc"
	sig "github.com/dkeye/VideoRoom/internal/adapters/signal"
	"github.com/dkeye/VideoRoom/internal/app"
	"github.com/dkeye/VideoRoom/internal/config"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/dkeye/VideoRoom/internal/telemetry"
)

var joinFlags = []cli.Flag{
	&cli.StringFlag{Name: "server", Usage: "signaling server url, e.g. http://localhost:4000"},
	&cli.StringFlag{Name: "room", Usage: "room id to join"},
	&cli.StringFlag{Name: "name", Usage: "display name shown to other participants"},
	&cli.StringFlag{Name: "video", Usage: "VP8 .ivf file published as camera"},
	&cli.StringFlag{Name: "audio", Usage: "Opus .ogg file published as microphone"},
	&cli.StringFlag{Name: "screen", Usage: "VP8 .ivf file shared as screen in a second session"},
	&cli.StringFlag{Name: "status-addr", Usage: "listen address of the status server, empty disables it"},
	&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
}

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	a := &cli.App{
		Name:  "videoroom-client",
		Usage: "headless video room participant",
		Commands: []*cli.Command{
			{
				Name:   "join",
				Usage:  "join a room and publish media files",
				Flags:  joinFlags,
				Action: join,
			},
		},
	}
	if err := a.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("client failed")
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	overrides := map[string]*string{
		"server":      &cfg.ServerURL,
		"room":        &cfg.Room,
		"name":        &cfg.DisplayName,
		"video":       &cfg.VideoFile,
		"audio":       &cfg.AudioFile,
		"screen":      &cfg.ScreenFile,
		"status-addr": &cfg.StatusAddr,
		"log-level":   &cfg.LogLevel,
	}
	for flag, dst := range overrides {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	return cfg, cfg.Validate()
}

func join(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	telemetry.Init()

	api, err := rtc.NewAPI(rtc.NewLoggerFactory(log.Logger))
	if err != nil {
		return err
	}
	socket, err := sig.Dial(ctx, sig.Options{
		ServerURL:       cfg.ServerURL,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
		WriteTimeout:    cfg.WriteTimeout,
		ReadLimit:       cfg.ReadLimit,
		SendBuffer:      cfg.SendBuffer,
	})
	if err != nil {
		return err
	}
	defer socket.Close()

	rtcCfg := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		rtcCfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	fatal := func(message string) { cancel() }
	room := domain.RoomID(cfg.Room)

	participant, err := app.NewSession(socket, room, app.Options{
		Mode:             domain.ModeParticipant,
		DisplayName:      cfg.DisplayName,
		RTCConfig:        rtcCfg,
		Callbacks:        console.NewCallbacks(os.Stdout, "participant", fatal),
		TransportFactory: rtc.NewFactory(api),
		PushTimeout:      cfg.PushTimeout,
	})
	if err != nil {
		return err
	}
	defer participant.Stop()

	if err := publishFiles(ctx, participant, cfg); err != nil {
		return err
	}
	if err := participant.Start(ctx); err != nil {
		return err
	}
	sessions := []*app.Session{participant}

	if cfg.ScreenFile != "" {
		screen, err := app.NewSession(socket, room, app.Options{
			Mode:             domain.ModeScreensharing,
			DisplayName:      cfg.DisplayName,
			RTCConfig:        rtcCfg,
			Callbacks:        console.NewCallbacks(nil, "screensharing", fatal),
			TransportFactory: rtc.NewFactory(api),
			Capturer:         &media.FileCapturer{Path: cfg.ScreenFile, Loop: cfg.LoopMedia},
			Placeholder:      rtc.NewPlaceholder,
			PushTimeout:      cfg.PushTimeout,
		})
		if err != nil {
			return err
		}
		defer screen.Stop()
		if err := screen.Start(ctx); err != nil {
			return err
		}
		sessions = append(sessions, screen)
		go shareWhenNegotiated(ctx, screen)
	}

	var srv *http.Server
	if cfg.StatusAddr != "" {
		srv = &http.Server{
			Addr:    cfg.StatusAddr,
			Handler: router.SetupRouter(cfg, views(sessions)...),
		}
		go func() {
			log.Info().Str("addr", cfg.StatusAddr).Msg("status server started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server error")
			}
		}()
	}

	log.Info().Str("room", cfg.Room).Str("name", cfg.DisplayName).Msg("joined")
	<-ctx.Done()
	log.Info().Msg("Shutting down")

	for _, sess := range sessions {
		sess.Stop()
		select {
		case <-sess.Done():
		case <-time.After(5 * time.Second):
			log.Warn().Str("session_id", sess.ID()).Msg("session did not stop in time")
		}
	}
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
	}
	log.Info().Msg("Client exited gracefully")
	return nil
}

func views(sessions []*app.Session) []router.SessionView {
	out := make([]router.SessionView, len(sessions))
	for i, s := range sessions {
		out[i] = s
	}
	return out
}

// publishFiles registers the camera and microphone files as one local stream.
func publishFiles(ctx context.Context, s *app.Session, cfg *config.Config) error {
	streamID := uuid.NewString()
	for _, path := range []string{cfg.VideoFile, cfg.AudioFile} {
		if path == "" {
			continue
		}
		track, err := media.NewFileTrack(path, uuid.NewString(), streamID, cfg.LoopMedia)
		if err != nil {
			return err
		}
		if err := track.Start(); err != nil {
			return err
		}
		if err := s.AddTrack(ctx, track); err != nil {
			track.Stop()
			return err
		}
	}
	return nil
}

// shareWhenNegotiated starts screensharing once the first offer was answered.
func shareWhenNegotiated(ctx context.Context, s *app.Session) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			return
		case <-ticker.C:
			if s.State() != app.NegotiationStable {
				continue
			}
			if err := s.StartScreensharing(ctx); err != nil {
				log.Error().Err(err).Msg("screensharing failed")
			}
			return
		}
	}
}
