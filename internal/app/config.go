package app

import (
	"os"
	"strconv"
	"strings"
)

// Config is a flat, environment-populated configuration struct — the
// teacher carries no config file parser, so neither do we.
type Config struct {
	HTTPAddr        string
	MongoURI        string
	MongoDatabase   string
	LogLevel        string
	LogFormat       string
	AppDataDir      string // <app_data>/stream_cache
	MusicDir        string // <user_music>/HiFlac Downloads
	FFMPEGPath      string
	FFProbePath     string
	FirstChunkSegs  int
	RegularChunkSegs int
	FetchWorkers    int
	FetchRateLimitBytesPerSec int64 // 0 = unlimited
	HTTPTimeoutSecs int
	LosslessCodec   string // e.g. "flac"
	LosslessExt     string // e.g. "flac"
	CORSAllowedOrigins []string
	AudioDeviceIndex int
	AudioDeviceName  string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8090"),
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:    getEnv("MONGO_DB", "hiflacstream"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		AppDataDir:       getEnv("APP_DATA_DIR", "data/stream_cache"),
		MusicDir:         getEnv("MUSIC_DIR", "Music/HiFlac Downloads"),
		FFMPEGPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath:      getEnv("FFPROBE_PATH", "ffprobe"),
		FirstChunkSegs:   int(getEnvInt64("FIRST_CHUNK_SEGMENTS", 2)),
		RegularChunkSegs: int(getEnvInt64("REGULAR_CHUNK_SEGMENTS", 8)),
		FetchWorkers:     int(getEnvInt64("FETCH_WORKERS", 2)),
		FetchRateLimitBytesPerSec: getEnvInt64("FETCH_RATE_LIMIT_BYTES_PER_SEC", 0),
		HTTPTimeoutSecs:  int(getEnvInt64("HTTP_TIMEOUT_SECONDS", 60)),
		LosslessCodec:    getEnv("LOSSLESS_CODEC", "flac"),
		LosslessExt:      getEnv("LOSSLESS_EXT", "flac"),
		CORSAllowedOrigins: parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		AudioDeviceIndex: int(getEnvInt64("AUDIO_DEVICE_INDEX", 0)),
		AudioDeviceName:  getEnv("AUDIO_DEVICE_NAME", "default"),
	}
}

func parseCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
