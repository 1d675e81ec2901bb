package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.DefaultGraceMinutes != 15 {
		t.Errorf("DefaultGraceMinutes = %d, want 15", cfg.DefaultGraceMinutes)
	}
	if cfg.MaxGraceMinutes != 120 {
		t.Errorf("MaxGraceMinutes = %d, want 120", cfg.MaxGraceMinutes)
	}
	if cfg.RecentLimit != 10 {
		t.Errorf("RecentLimit = %d, want 10", cfg.RecentLimit)
	}
	if cfg.SMSLogLimit != 100 {
		t.Errorf("SMSLogLimit = %d, want 100", cfg.SMSLogLimit)
	}
	if cfg.ExportPDFMaxRows != 100 {
		t.Errorf("ExportPDFMaxRows = %d, want 100", cfg.ExportPDFMaxRows)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.AccessTTL)
	}
	// SMS stays off until all three Twilio values are present.
	if cfg.SMSEnabled {
		t.Error("SMSEnabled = true without Twilio credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SMS_LOG_LIMIT", "25")
	t.Setenv("RECENT_LIMIT", "5")
	t.Setenv("DEFAULT_GRACE_MINUTES", "10")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("FACE_SKIP", "false")

	cfg := Load()

	if cfg.SMSLogLimit != 25 {
		t.Errorf("SMSLogLimit = %d, want 25", cfg.SMSLogLimit)
	}
	if cfg.RecentLimit != 5 {
		t.Errorf("RecentLimit = %d, want 5", cfg.RecentLimit)
	}
	if cfg.DefaultGraceMinutes != 10 {
		t.Errorf("DefaultGraceMinutes = %d, want 10", cfg.DefaultGraceMinutes)
	}
	if cfg.AccessTTL != 30*time.Minute {
		t.Errorf("AccessTTL = %v, want 30m", cfg.AccessTTL)
	}
	if cfg.FaceSkip {
		t.Error("FaceSkip = true, want false")
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("SMS_LOG_LIMIT", "lots")
	t.Setenv("ACCESS_TTL", "soon")

	cfg := Load()

	if cfg.SMSLogLimit != 100 {
		t.Errorf("SMSLogLimit = %d, want fallback 100", cfg.SMSLogLimit)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want fallback 15m", cfg.AccessTTL)
	}
}

func TestSMSEnabledRequiresAllCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")

	if cfg := Load(); cfg.SMSEnabled {
		t.Error("SMSEnabled = true without a from number")
	}

	t.Setenv("TWILIO_FROM_NUMBER", "+15550000000")
	if cfg := Load(); !cfg.SMSEnabled {
		t.Error("SMSEnabled = false with full credentials")
	}

	t.Setenv("SMS_ENABLED", "false")
	if cfg := Load(); cfg.SMSEnabled {
		t.Error("SMSEnabled = true despite SMS_ENABLED=false")
	}
}
