package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"DYNAMIC_POLL_INTERVAL_SECONDS", "DYNAMIC_FRESHNESS_MINUTES", "DYNAMIC_DEDUP_CAPACITY",
		"AUTO_FOLLOW_ENABLED", "AUTO_FOLLOW_INTERVAL_SECONDS", "BACKUP_POLL_ENABLED",
		"BACKUP_POLL_INTERVAL_SECONDS", "LIVE_STATUS_STORE", "HTTP_ADDR", "DB_DSN",
	} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DynamicPollInterval != 15*time.Second {
		t.Errorf("DynamicPollInterval = %v", cfg.DynamicPollInterval)
	}
	if cfg.DynamicFreshness != 0 {
		t.Errorf("DynamicFreshness = %v, want disabled", cfg.DynamicFreshness)
	}
	if cfg.DynamicDedupCap != 1000 {
		t.Errorf("DynamicDedupCap = %d", cfg.DynamicDedupCap)
	}
	if !cfg.AutoFollowEnabled || cfg.AutoFollowInterval != time.Minute {
		t.Errorf("auto follow = %v %v", cfg.AutoFollowEnabled, cfg.AutoFollowInterval)
	}
	if !cfg.BackupPollEnabled || cfg.BackupPollInterval != 30*time.Second {
		t.Errorf("backup poll = %v %v", cfg.BackupPollEnabled, cfg.BackupPollInterval)
	}
	if cfg.ReconnectWindow != 5*time.Minute {
		t.Errorf("ReconnectWindow = %v", cfg.ReconnectWindow)
	}
	if cfg.LiveStatusStore != "postgres" || cfg.HTTPAddr != ":8080" || cfg.DBDsn == "" {
		t.Errorf("store=%q addr=%q dsn=%q", cfg.LiveStatusStore, cfg.HTTPAddr, cfg.DBDsn)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DYNAMIC_POLL_INTERVAL_SECONDS", "20")
	t.Setenv("DYNAMIC_FRESHNESS_MINUTES", "30")
	t.Setenv("AUTO_FOLLOW_ENABLED", "false")
	t.Setenv("LIVE_STATUS_STORE", " Redis ")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DynamicPollInterval != 20*time.Second || cfg.DynamicFreshness != 30*time.Minute {
		t.Errorf("intervals = %v %v", cfg.DynamicPollInterval, cfg.DynamicFreshness)
	}
	if cfg.AutoFollowEnabled {
		t.Error("auto follow should be disabled")
	}
	if cfg.LiveStatusStore != "redis" {
		t.Errorf("store = %q", cfg.LiveStatusStore)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"DYNAMIC_POLL_INTERVAL_SECONDS": "abc",
		"BACKUP_POLL_INTERVAL_SECONDS":  "0",
		"DYNAMIC_FRESHNESS_MINUTES":     "-1",
		"DYNAMIC_DEDUP_CAPACITY":        "0",
		"BACKUP_POLL_ENABLED":           "maybe",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("Load() with %s=%s: err = %v", key, val, err)
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	cfg := &Config{
		SESSDATA:            "s",
		BiliJct:             "j",
		DynamicPollInterval: 15 * time.Second,
		AutoFollowEnabled:   true,
		AutoFollowInterval:  time.Minute,
		BackupPollEnabled:   true,
		BackupPollInterval:  30 * time.Second,
		AdminToken:          "t",
	}
	if w := cfg.Warnings(); len(w) != 0 {
		t.Fatalf("unexpected warnings: %v", w)
	}

	cfg.DynamicPollInterval = 5 * time.Second
	cfg.AutoFollowInterval = 10 * time.Second
	cfg.BackupPollInterval = time.Second
	w := strings.Join(cfg.Warnings(), "\n")
	for _, key := range []string{"DYNAMIC_POLL_INTERVAL_SECONDS", "AUTO_FOLLOW_INTERVAL_SECONDS", "BACKUP_POLL_INTERVAL_SECONDS"} {
		if !strings.Contains(w, key) {
			t.Errorf("missing warning for %s in %q", key, w)
		}
	}

	cfg.AutoFollowEnabled = false
	if w := strings.Join(cfg.Warnings(), "\n"); !strings.Contains(w, "AUTO_FOLLOW_ENABLED=false") {
		t.Errorf("missing disabled warning: %q", w)
	}
}
