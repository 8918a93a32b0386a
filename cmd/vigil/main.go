// Command vigil watches a camera feed and reports the subject's activity and
// whether they have fallen asleep.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vigil/internal/activity"
	"vigil/internal/auth"
	"vigil/internal/camera"
	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/detection"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/monitor"
	"vigil/internal/notify"
	"vigil/internal/server"
	"vigil/internal/sleep"
	"vigil/internal/stream"
	"vigil/internal/ws"
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"mode":       "monitor.mode",
	"source":     "camera.source",
	"device":     "camera.device",
	"url":        "camera.url",
	"http-addr":  "http.addr",
	"db":         "db.path",
	"log-level":  "logLevel",
	"pose-url":   "inference.poseEndpoint",
	"face-url":   "inference.faceEndpoint",
	"grpc-probe": "inference.grpcHealthAddr",
}

func main() {
	fs := pflag.NewFlagSet("vigil", pflag.ExitOnError)
	var (
		configDirF = fs.String("config", ".", "Directory containing vigil.yaml")
		useGoCVF   = fs.Bool("gocv", false, "Capture with OpenCV instead of ffmpeg (binary must be built with -tags gocv)")
		noKeysF    = fs.Bool("no-keys", false, "Do not watch stdin for q/ESC")
	)
	fs.String("mode", "", "Monitor mode (activity|sleep)")
	fs.String("source", "", "Camera source (local|ip)")
	fs.String("device", "", "Local capture device")
	fs.String("url", "", "Network camera stream URL")
	fs.String("http-addr", "", "Display server listen address")
	fs.String("db", "", "Event store path (empty disables recording)")
	fs.String("log-level", "", "Log level")
	fs.String("pose-url", "", "Pose sidecar endpoint")
	fs.String("face-url", "", "Face landmark sidecar endpoint")
	fs.String("grpc-probe", "", "Optional gRPC health address probed at startup")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to bind flag %s: %v\n", name, err)
			os.Exit(2)
		}
	}
	cfg, err := config.Load(v, *configDirF)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.LogLevel, os.Stderr, cfg.LogPretty)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *useGoCVF, !*noKeysF); err != nil {
		logger.Fatal().Err(err).Msg("vigil failed")
	}
	logger.Info().Msg("exited")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, useGoCV, watchKeys bool) error {
	mets, err := metrics.Setup(cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	inf := cfg.Inference
	poseDet := detection.NewPoseDetector(detection.Config{Endpoint: inf.PoseEndpoint, Timeout: inf.Timeout})
	faceDet := detection.NewFaceLandmarker(detection.Config{Endpoint: inf.FaceEndpoint, Timeout: inf.Timeout})
	sidecars := map[string]server.HealthChecker{"face": faceDet}
	if cfg.Mode == config.ModeActivity {
		sidecars["pose"] = poseDet
	}
	for name, s := range sidecars {
		if !s.IsHealthy() {
			logger.Warn().Str("sidecar", name).Msg("sidecar not healthy yet; frames will count as no detection until it is")
		}
	}
	if inf.GRPCHealthAddr != "" {
		pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
		if err := detection.ProbeGRPCHealth(pctx, inf.GRPCHealthAddr, ""); err != nil {
			logger.Warn().Err(err).Str("addr", inf.GRPCHealthAddr).Msg("gRPC health probe failed")
		}
		pcancel()
	}

	camLog := logging.Component(logger, "camera")
	camCfg := camera.Config{
		Kind:   cfg.Camera.Source,
		Device: cfg.Camera.Device,
		URL:    cfg.Camera.URL,
		FPS:    cfg.Camera.FPS,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}
	var src camera.Source
	if useGoCV {
		src, err = camera.OpenGoCV(ctx, camCfg)
	} else {
		src, err = camera.Open(ctx, camCfg)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			camLog.Debug().Err(err).Msg("camera close")
		}
		camLog.Info().Msg("camera released")
	}()
	camLog.Info().Str("source", cfg.Camera.Source).Str("input", camCfg.Input()).Msg("camera opened")

	authenticator, err := auth.NewAuthenticator(auth.Config{
		Enabled:   cfg.Auth.Enabled,
		Username:  cfg.Auth.Username,
		Password:  cfg.Auth.Password,
		JWTSecret: cfg.Auth.JWTSecret,
		JWTExpiry: cfg.Auth.JWTExpiry,
	})
	if err != nil {
		return fmt.Errorf("failed to configure auth: %w", err)
	}

	broadcaster := stream.NewBroadcaster(logging.Component(logger, "stream"))
	hub := ws.NewHub(logging.Component(logger, "ws"))

	var (
		store     server.Store
		sessionID string
		sinks     = []monitor.Sink{monitor.StreamSink(broadcaster)}
	)
	if cfg.DBPath != "" {
		dbLog := logging.Component(logger, "database")
		db, err := database.Open(cfg.DBPath, dbLog)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return err
		}
		sess, err := db.StartSession(cfg.Mode, camCfg.Input(), time.Now())
		if err != nil {
			return err
		}
		defer func() {
			if err := db.EndSession(sess.ID, time.Now()); err != nil {
				dbLog.Error().Err(err).Msg("failed to close session")
			}
		}()
		store, sessionID = db, sess.ID
		sinks = append(sinks, monitor.NewRecorder(db, sess.ID, dbLog))
		dbLog.Info().Str("session", sess.ID).Msg("session started")
	}
	sinks = append(sinks, monitor.StatusSink(hub, sessionID))

	var wg sync.WaitGroup
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer func() {
		bgCancel()
		wg.Wait()
	}()

	tgCfg := notify.Config{
		Enabled:         cfg.Telegram.Enabled,
		BotToken:        cfg.Telegram.BotToken,
		ChatID:          cfg.Telegram.ChatID,
		CooldownSeconds: cfg.Telegram.CooldownSeconds,
	}
	if tgCfg.Enabled {
		if err := notify.ValidateConfig(tgCfg); err != nil {
			return fmt.Errorf("invalid telegram config: %w", err)
		}
		alertLog := logging.Component(logger, "notify")
		tg := notify.NewTelegram(tgCfg)
		alerts := notify.NewAsync(tg, alertLog)
		commands := notify.NewCommands(tg, hub, broadcaster, store, sessionID, alertLog)
		wg.Add(2)
		go func() {
			defer wg.Done()
			alerts.Run(bgCtx)
		}()
		go func() {
			defer wg.Done()
			if err := commands.Run(bgCtx); err != nil {
				alertLog.Error().Err(err).Msg("telegram commands stopped")
			}
		}()
		sinks = append(sinks, monitor.AlertSink(alerts, alertLog))
	}

	srv := server.New(cfg.HTTPAddr, server.NewRouter(server.Deps{
		Auth:     authenticator,
		Store:    store,
		Stream:   broadcaster,
		Hub:      hub,
		Sidecars: sidecars,
		Logger:   logging.Component(logger, "http"),
	}), logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Run(bgCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	var stop <-chan struct{}
	if watchKeys {
		stop = monitor.WatchKeys(os.Stdin)
		logger.Info().Msg("press q or ESC then Enter to stop")
	}

	opts := monitor.Options{
		Mode:    cfg.Mode,
		Source:  src,
		Face:    faceDet,
		Sleep:   sleep.New(cfg.Thresholds, nil),
		Sinks:   sinks,
		Logger:  logging.Component(logger, "monitor"),
		Metrics: mets,
		Stop:    stop,
	}
	if cfg.Mode == config.ModeActivity {
		opts.Pose = poseDet
		opts.Activity = activity.New(cfg.Thresholds)
	}
	mon, err := monitor.New(opts)
	if err != nil {
		return err
	}

	err = mon.Run(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	return err
}
