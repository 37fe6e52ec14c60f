package config

import (
	"os"
	"strconv"
)

// Config holds runtime configuration, loaded from environment variables.
// Command line flags in cmd/ default to these values.
type Config struct {
	// Preset server
	Port       int
	PresetsDir string
	ServerURL  string

	// Engine
	SampleRate int
	BPM        float64
	Swing      float64 // 0..1
	MasterGain float64 // 0..1

	// Where trims and patterns are saved; empty means ~/.config/samplerbox.
	StateDir string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:       envInt("SAMPLER_PORT", 3000),
		PresetsDir: envStr("SAMPLER_PRESETS_DIR", "presets"),
		ServerURL:  envStr("SAMPLER_SERVER_URL", "http://localhost:3000"),

		SampleRate: envInt("SAMPLER_SAMPLE_RATE", 48000),
		BPM:        envFloat("SAMPLER_BPM", 120),
		Swing:      envFloat("SAMPLER_SWING", 0),
		MasterGain: envFloat("SAMPLER_MASTER_GAIN", 0.9),

		StateDir: envStr("SAMPLER_STATE_DIR", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
