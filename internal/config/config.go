package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Monitor modes
const (
	ModeActivity = "activity" // pose + face, activity label with sleep override
	ModeSleep    = "sleep"    // face only, AWAKE/SLEEPING status
)

// Camera source kinds
const (
	SourceLocal = "local"
	SourceIP    = "ip"
)

// Thresholds holds the classifier constants. It is a value type: callers get
// a copy and nothing mutates it after startup.
type Thresholds struct {
	RunThreshold    float64       // avg leg motion above this is running
	WalkThreshold   float64       // avg leg motion above this is walking
	SitKneeAngle    float64       // radians; avg knee angle below this is sitting
	MotionAvgFrames int           // MotionBuffer capacity
	VoteFrames      int           // ActivityBuffer capacity
	EARThreshold    float64       // eye-aspect-ratio below this counts as closed
	SleepTime       time.Duration // eyes closed at least this long means sleeping
}

// DefaultThresholds returns the stock classifier constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RunThreshold:    0.030,
		WalkThreshold:   0.008,
		SitKneeAngle:    2.3,
		MotionAvgFrames: 10,
		VoteFrames:      8,
		EARThreshold:    0.20,
		SleepTime:       10 * time.Second,
	}
}

// Validate checks that the thresholds are usable.
func (t Thresholds) Validate() error {
	var errs []error
	if t.WalkThreshold <= 0 || t.RunThreshold <= 0 {
		errs = append(errs, errors.New("motion thresholds must be positive"))
	}
	if t.WalkThreshold >= t.RunThreshold {
		errs = append(errs, fmt.Errorf("walk threshold %.4f must be below run threshold %.4f", t.WalkThreshold, t.RunThreshold))
	}
	if t.SitKneeAngle <= 0 {
		errs = append(errs, errors.New("sit knee angle must be positive"))
	}
	if t.MotionAvgFrames < 1 || t.VoteFrames < 1 {
		errs = append(errs, errors.New("buffer sizes must be at least 1"))
	}
	if t.EARThreshold <= 0 {
		errs = append(errs, errors.New("EAR threshold must be positive"))
	}
	if t.SleepTime <= 0 {
		errs = append(errs, errors.New("sleep time must be positive"))
	}
	return errors.Join(errs...)
}

// CameraConfig describes where frames come from.
type CameraConfig struct {
	Source string // "local" or "ip"
	Device string // local device path
	URL    string // network stream URL
	FPS    int
	Width  int
	Height int
}

// InferenceConfig describes the model sidecars.
type InferenceConfig struct {
	PoseEndpoint   string
	FaceEndpoint   string
	Timeout        time.Duration
	GRPCHealthAddr string
}

// AuthConfig controls access to the HTTP surfaces.
type AuthConfig struct {
	Enabled   bool
	Username  string
	Password  string
	JWTSecret string
	JWTExpiry time.Duration
}

// TelegramConfig controls sleep alerts.
type TelegramConfig struct {
	Enabled         bool
	BotToken        string
	ChatID          string
	CooldownSeconds int
}

// Config is the fully resolved process configuration.
type Config struct {
	LogLevel    string
	LogPretty   bool
	Mode        string
	HTTPAddr    string
	DBPath      string
	OTelEnabled bool
	Camera      CameraConfig
	Inference   InferenceConfig
	Auth        AuthConfig
	Telegram    TelegramConfig
	Thresholds  Thresholds
}

// SetDefaults registers default values for every key.
func SetDefaults(v *viper.Viper) {
	d := DefaultThresholds()

	v.SetDefault("logLevel", "info")
	v.SetDefault("logPretty", true)
	v.SetDefault("monitor.mode", ModeActivity)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.path", "./vigil.db")
	v.SetDefault("otel.enabled", false)

	v.SetDefault("camera.source", SourceIP)
	v.SetDefault("camera.device", "/dev/video0")
	v.SetDefault("camera.url", "http://10.123.47.217:8080/video")
	v.SetDefault("camera.fps", 15)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)

	v.SetDefault("inference.poseEndpoint", "http://localhost:8081")
	v.SetDefault("inference.faceEndpoint", "http://localhost:8082")
	v.SetDefault("inference.timeout", "15s")
	v.SetDefault("inference.grpcHealthAddr", "")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.jwtExpiry", "24h")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.botToken", "")
	v.SetDefault("telegram.chatId", "")
	v.SetDefault("telegram.cooldownSeconds", 300)

	v.SetDefault("thresholds.run", d.RunThreshold)
	v.SetDefault("thresholds.walk", d.WalkThreshold)
	v.SetDefault("thresholds.sitKneeAngle", d.SitKneeAngle)
	v.SetDefault("thresholds.motionAvgFrames", d.MotionAvgFrames)
	v.SetDefault("thresholds.voteFrames", d.VoteFrames)
	v.SetDefault("thresholds.ear", d.EARThreshold)
	v.SetDefault("thresholds.sleepTime", d.SleepTime.String())
}

// Load reads the optional config file from configDir (vigil.yaml, vigil.json, ...),
// applies VIGIL_* environment overrides and resolves everything into a Config.
// A missing config file is not an error.
func Load(v *viper.Viper, configDir string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("VIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configDir != "" {
		v.SetConfigName("vigil")
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	return Resolve(v)
}

// Resolve converts viper state into a validated Config.
func Resolve(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogLevel:    v.GetString("logLevel"),
		LogPretty:   v.GetBool("logPretty"),
		Mode:        v.GetString("monitor.mode"),
		HTTPAddr:    v.GetString("http.addr"),
		DBPath:      v.GetString("db.path"),
		OTelEnabled: v.GetBool("otel.enabled"),
		Camera: CameraConfig{
			Source: v.GetString("camera.source"),
			Device: v.GetString("camera.device"),
			URL:    v.GetString("camera.url"),
			FPS:    v.GetInt("camera.fps"),
			Width:  v.GetInt("camera.width"),
			Height: v.GetInt("camera.height"),
		},
		Inference: InferenceConfig{
			PoseEndpoint:   v.GetString("inference.poseEndpoint"),
			FaceEndpoint:   v.GetString("inference.faceEndpoint"),
			Timeout:        v.GetDuration("inference.timeout"),
			GRPCHealthAddr: v.GetString("inference.grpcHealthAddr"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("auth.enabled"),
			Username:  v.GetString("auth.username"),
			Password:  v.GetString("auth.password"),
			JWTSecret: v.GetString("auth.jwtSecret"),
			JWTExpiry: v.GetDuration("auth.jwtExpiry"),
		},
		Telegram: TelegramConfig{
			Enabled:         v.GetBool("telegram.enabled"),
			BotToken:        v.GetString("telegram.botToken"),
			ChatID:          v.GetString("telegram.chatId"),
			CooldownSeconds: v.GetInt("telegram.cooldownSeconds"),
		},
		Thresholds: Thresholds{
			RunThreshold:    v.GetFloat64("thresholds.run"),
			WalkThreshold:   v.GetFloat64("thresholds.walk"),
			SitKneeAngle:    v.GetFloat64("thresholds.sitKneeAngle"),
			MotionAvgFrames: v.GetInt("thresholds.motionAvgFrames"),
			VoteFrames:      v.GetInt("thresholds.voteFrames"),
			EARThreshold:    v.GetFloat64("thresholds.ear"),
			SleepTime:       v.GetDuration("thresholds.sleepTime"),
		},
	}

	switch cfg.Mode {
	case ModeActivity, ModeSleep:
	default:
		return nil, fmt.Errorf("invalid monitor mode %q (valid: %s|%s)", cfg.Mode, ModeActivity, ModeSleep)
	}
	switch cfg.Camera.Source {
	case SourceLocal, SourceIP:
	default:
		return nil, fmt.Errorf("invalid camera source %q (valid: %s|%s)", cfg.Camera.Source, SourceLocal, SourceIP)
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	return cfg, nil
}
