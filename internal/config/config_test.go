package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("TAGMON_CONFIG", "")
	t.Setenv("TAGMON_FEED_URL", "ws://feed.local/stream")
	t.Setenv("TAGMON_HTTP_ADDR", "")
	t.Setenv("TAGMON_POSTGRES_DSN", "")
	t.Setenv("TAGMON_BROADCAST", "")
	t.Setenv("TAGMON_JWT_SECRET", "")
	t.Setenv("TAGMON_ALARM_BUCKET_MS", "")
	t.Setenv("TAGMON_TICKER_STAGGER_MS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.FeedURL != "ws://feed.local/stream" {
		t.Fatalf("unexpected feed url %q", cfg.FeedURL)
	}
	if cfg.Bucket() != 10*time.Second {
		t.Fatalf("unexpected bucket %s", cfg.Bucket())
	}
	if cfg.TTL() != 24*time.Hour {
		t.Fatalf("unexpected ttl %s", cfg.TTL())
	}
	if cfg.Cooldown() != 2800*time.Millisecond {
		t.Fatalf("unexpected cooldown %s", cfg.Cooldown())
	}
}

func TestLoadBroadcastMode(t *testing.T) {
	t.Setenv("TAGMON_CONFIG", "")
	t.Setenv("TAGMON_FEED_URL", "ws://feed.local/stream")
	t.Setenv("TAGMON_BROADCAST", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broadcast != BroadcastNotify {
		t.Fatalf("unexpected default broadcast mode %q", cfg.Broadcast)
	}

	t.Setenv("TAGMON_BROADCAST", "poll")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broadcast != BroadcastPoll {
		t.Fatalf("unexpected broadcast mode %q", cfg.Broadcast)
	}

	t.Setenv("TAGMON_BROADCAST", "multicast")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown broadcast mode")
	}
}

func TestLoadRequiresFeedURL(t *testing.T) {
	t.Setenv("TAGMON_CONFIG", "")
	t.Setenv("TAGMON_FEED_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing feed url")
	}
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
http_addr: ":9090"
feed_url: "ws://file.local/stream"
jwt_secret: "file-secret"
alarms:
  bucket_ms: 5000
ticker:
  stagger_ms: 900
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TAGMON_CONFIG", path)
	t.Setenv("TAGMON_FEED_URL", "")
	t.Setenv("TAGMON_HTTP_ADDR", "")
	t.Setenv("TAGMON_POSTGRES_DSN", "")
	t.Setenv("TAGMON_BROADCAST", "")
	t.Setenv("TAGMON_JWT_SECRET", "")
	t.Setenv("TAGMON_ALARM_BUCKET_MS", "")
	t.Setenv("TAGMON_TICKER_STAGGER_MS", "7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected file addr, got %q", cfg.HTTPAddr)
	}
	if cfg.Alarms.BucketMS != 5000 {
		t.Fatalf("expected file bucket, got %d", cfg.Alarms.BucketMS)
	}
	if cfg.Stagger() != 7*time.Second {
		t.Fatalf("expected env override for stagger, got %s", cfg.Stagger())
	}
	if cfg.JWTSecret != "file-secret" {
		t.Fatalf("unexpected secret %q", cfg.JWTSecret)
	}
}
