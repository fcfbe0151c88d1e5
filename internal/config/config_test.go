package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VIDTUBE_STORE_DRIVER", "")
	t.Setenv("VIDTUBE_ACCESS_TOKEN_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("expected postgres driver got %q", cfg.StoreDriver)
	}
	if cfg.Tokens.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %v", cfg.Tokens.AccessTTL)
	}
	if !cfg.Cookies.Secure {
		t.Fatal("cookies should default to secure")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VIDTUBE_PORT", "9090")
	t.Setenv("VIDTUBE_STORE_DRIVER", "MONGO")
	t.Setenv("VIDTUBE_REFRESH_TOKEN_TTL", "48h")
	t.Setenv("VIDTUBE_COOKIE_SECURE", "false")
	t.Setenv("VIDTUBE_CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("VIDTUBE_RATE_LIMIT_BURST", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppPort != 9090 {
		t.Fatalf("expected port 9090 got %d", cfg.AppPort)
	}
	if cfg.StoreDriver != StoreDriverMongo {
		t.Fatalf("expected mongo driver got %q", cfg.StoreDriver)
	}
	if cfg.Tokens.RefreshTTL != 48*time.Hour {
		t.Fatalf("unexpected refresh ttl %v", cfg.Tokens.RefreshTTL)
	}
	if cfg.Cookies.Secure {
		t.Fatal("expected insecure cookies")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.RateLimit.Burst != 5 {
		t.Fatalf("expected fallback burst got %d", cfg.RateLimit.Burst)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreDriver:    StoreDriverMemory,
		MaxUploadBytes: 1,
		ObjectStore:    ObjectStoreConfig{Driver: MediaDriverDisk},
		Tokens: TokenConfig{
			AccessSecret:  "a",
			AccessTTL:     time.Minute,
			RefreshSecret: "r",
			RefreshTTL:    time.Hour,
		},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}

	cases := map[string]func(*Config){
		"unknown driver":   func(c *Config) { c.StoreDriver = "sqlite" },
		"missing secret":   func(c *Config) { c.Tokens.RefreshSecret = "" },
		"shared secret":    func(c *Config) { c.Tokens.RefreshSecret = c.Tokens.AccessSecret },
		"zero ttl":         func(c *Config) { c.Tokens.AccessTTL = 0 },
		"zero upload size": func(c *Config) { c.MaxUploadBytes = 0 },
		"unknown media":    func(c *Config) { c.ObjectStore.Driver = "ftp" },
		"s3 no bucket":     func(c *Config) { c.ObjectStore = ObjectStoreConfig{Driver: MediaDriverS3} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
