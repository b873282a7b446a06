// Package config handles server configuration
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr string

	// Video capture backend (OBS WebSocket)
	OBSHost       string
	OBSPort       int
	OBSPassword   string
	VideoSource   string // empty = first discovered source
	VideoInterval time.Duration
	VideoWidth    int
	VideoHeight   int

	// Audio capture
	SampleRate    int
	ChunkSize     int
	BufferSeconds int
	AudioDevice   int // -1 = default input device
	AudioWindow   time.Duration

	// Pipeline
	SyncInterval     time.Duration
	AnalysisInterval time.Duration
	MinConfidence    float64

	// Persistence
	DBPath       string
	ErrorLogPath string
	MaxErrors    int

	// External notification service
	ExternalURL        string
	ExternalTimeout    time.Duration
	ExternalRetries    int
	ExternalRetryDelay time.Duration
}

func Load() *Config {
	return &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":5000"),
		OBSHost:            getEnv("OBS_HOST", "localhost"),
		OBSPort:            getEnvInt("OBS_PORT", 4455),
		OBSPassword:        getEnv("OBS_PASSWORD", ""),
		VideoSource:        getEnv("VIDEO_SOURCE", ""),
		VideoInterval:      getEnvDuration("VIDEO_INTERVAL", 100*time.Millisecond),
		VideoWidth:         getEnvInt("VIDEO_WIDTH", 640),
		VideoHeight:        getEnvInt("VIDEO_HEIGHT", 480),
		SampleRate:         getEnvInt("SAMPLE_RATE", 16000),
		ChunkSize:          getEnvInt("CHUNK_SIZE", 1024),
		BufferSeconds:      getEnvInt("BUFFER_SECONDS", 5),
		AudioDevice:        getEnvInt("AUDIO_DEVICE", -1),
		AudioWindow:        getEnvDuration("AUDIO_WINDOW", 500*time.Millisecond),
		SyncInterval:       getEnvDuration("SYNC_INTERVAL", 50*time.Millisecond),
		AnalysisInterval:   getEnvDuration("ANALYSIS_INTERVAL", 60*time.Second),
		MinConfidence:      getEnvFloat("MIN_CONFIDENCE", 0.6),
		DBPath:             getEnv("DB_PATH", "data/activities.db"),
		ErrorLogPath:       getEnv("ERROR_LOG_PATH", "logs/errors.json"),
		MaxErrors:          getEnvInt("MAX_ERRORS", 100),
		ExternalURL:        getEnv("EXTERNAL_URL", ""),
		ExternalTimeout:    getEnvDuration("EXTERNAL_TIMEOUT", 5*time.Second),
		ExternalRetries:    getEnvInt("EXTERNAL_RETRIES", 3),
		ExternalRetryDelay: getEnvDuration("EXTERNAL_RETRY_DELAY", time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
