package config

import "testing"

var allVars = []string{
	"SAMPLER_PORT", "SAMPLER_PRESETS_DIR", "SAMPLER_SERVER_URL",
	"SAMPLER_SAMPLE_RATE", "SAMPLER_BPM", "SAMPLER_SWING",
	"SAMPLER_MASTER_GAIN", "SAMPLER_STATE_DIR",
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range allVars {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.PresetsDir != "presets" {
		t.Errorf("PresetsDir = %q, want presets", cfg.PresetsDir)
	}
	if cfg.ServerURL != "http://localhost:3000" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.BPM != 120 || cfg.Swing != 0 || cfg.MasterGain != 0.9 {
		t.Errorf("BPM/Swing/MasterGain = %v/%v/%v", cfg.BPM, cfg.Swing, cfg.MasterGain)
	}
	if cfg.StateDir != "" {
		t.Errorf("StateDir = %q, want empty", cfg.StateDir)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SAMPLER_PORT", "9090")
	t.Setenv("SAMPLER_PRESETS_DIR", "/srv/presets")
	t.Setenv("SAMPLER_SERVER_URL", "http://studio:9090")
	t.Setenv("SAMPLER_SAMPLE_RATE", "44100")
	t.Setenv("SAMPLER_BPM", "96.5")
	t.Setenv("SAMPLER_SWING", "0.4")
	t.Setenv("SAMPLER_MASTER_GAIN", "0.8")
	t.Setenv("SAMPLER_STATE_DIR", "/var/lib/samplerbox")

	cfg := Load()

	if cfg.Port != 9090 || cfg.PresetsDir != "/srv/presets" || cfg.ServerURL != "http://studio:9090" {
		t.Errorf("server config = %+v", cfg)
	}
	if cfg.SampleRate != 44100 || cfg.BPM != 96.5 || cfg.Swing != 0.4 || cfg.MasterGain != 0.8 {
		t.Errorf("engine config = %+v", cfg)
	}
	if cfg.StateDir != "/var/lib/samplerbox" {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("SAMPLER_PORT", "eighty")
	t.Setenv("SAMPLER_BPM", "fast")

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want fallback 3000", cfg.Port)
	}
	if cfg.BPM != 120 {
		t.Errorf("BPM = %v, want fallback 120", cfg.BPM)
	}
}
