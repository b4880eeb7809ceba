package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Capture cadence constants. The scheduler ticks every CaptureInterval; the
// first capture after activation is delayed by CaptureWarmup so the pipeline
// has produced a frame before we snapshot it.
const (
	CaptureInterval = 1 * time.Second
	CaptureWarmup   = 5 * time.Second
	UploadInterval  = 3 * time.Second
	RosterPoll      = 10 * time.Second
)

// Agent captures everything the student-side proctoring agent needs.
type Agent struct {
	APIBaseURL  string
	BearerToken string
	OlympiadID  string

	// StateDir holds the durable per-attempt record (timer start, answers).
	// Ignored when RedisURL is set.
	StateDir string
	RedisURL string

	CameraDevice  string
	ScreenDisplay string

	// UIAddr is where the agent serves the local exam API (answers, state,
	// manual submit, metrics). Empty disables the server.
	UIAddr string

	BufferCap     int
	UploadRetries int
}

// Monitor captures configuration for the observer-side monitoring client.
type Monitor struct {
	APIBaseURL  string
	RelayURL    string
	BearerToken string
	OlympiadID  string
	DashAddr    string
}

// AgentFromEnv builds the agent config from environment variables so main
// stays lean. A .env file in the working directory is honored when present.
func AgentFromEnv() Agent {
	_ = godotenv.Load()

	return Agent{
		APIBaseURL:    envOr("PROCTOR_API_URL", "http://localhost:5000/api"),
		BearerToken:   os.Getenv("PROCTOR_TOKEN"),
		OlympiadID:    os.Getenv("PROCTOR_OLYMPIAD_ID"),
		StateDir:      envOr("PROCTOR_STATE_DIR", defaultStateDir()),
		RedisURL:      os.Getenv("PROCTOR_REDIS_URL"),
		CameraDevice:  envOr("PROCTOR_CAMERA_DEVICE", "/dev/video0"),
		ScreenDisplay: envOr("PROCTOR_SCREEN_DISPLAY", ":0"),
		UIAddr:        envOr("PROCTOR_UI_ADDR", ":8089"),
		BufferCap:     envIntOr("PROCTOR_BUFFER_CAP", 32),
		UploadRetries: envIntOr("PROCTOR_UPLOAD_RETRIES", 2),
	}
}

// MonitorFromEnv builds the monitor config from environment variables.
func MonitorFromEnv() Monitor {
	_ = godotenv.Load()

	return Monitor{
		APIBaseURL:  envOr("PROCTOR_API_URL", "http://localhost:5000/api"),
		RelayURL:    envOr("PROCTOR_RELAY_URL", "ws://localhost:5000/socket"),
		BearerToken: os.Getenv("PROCTOR_TOKEN"),
		OlympiadID:  os.Getenv("PROCTOR_OLYMPIAD_ID"),
		DashAddr:    envOr("PROCTOR_DASH_ADDR", ":8090"),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".proctor"
	}
	return home + "/.proctor"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
