package edgeauth

import (
	"log/slog"
	"testing"
	"time"

	"github.com/wavecast/edgeauth/security"
	"github.com/wavecast/edgeauth/storage"
)

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(&Config{}, slog.Default())

	if cfg.SessionTTL != storage.DefaultSessionTTL {
		t.Errorf("SessionTTL = %v, want %v", cfg.SessionTTL, storage.DefaultSessionTTL)
	}
	if cfg.InitiateLimit != DefaultInitiateLimit {
		t.Errorf("InitiateLimit = %+v, want default", cfg.InitiateLimit)
	}
	if cfg.CallbackLimit != DefaultCallbackLimit {
		t.Errorf("CallbackLimit = %+v, want default", cfg.CallbackLimit)
	}
	if cfg.RefreshLimit != DefaultRefreshLimit {
		t.Errorf("RefreshLimit = %+v, want default", cfg.RefreshLimit)
	}
	if cfg.LogoutLimit != DefaultLogoutLimit {
		t.Errorf("LogoutLimit = %+v, want default", cfg.LogoutLimit)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	custom := security.Limit{Requests: 99, Window: time.Hour}
	cfg := applyDefaults(&Config{
		SessionTTL:    time.Hour,
		InitiateLimit: custom,
	}, slog.Default())

	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.SessionTTL)
	}
	if cfg.InitiateLimit != custom {
		t.Errorf("InitiateLimit = %+v, want custom", cfg.InitiateLimit)
	}
}
