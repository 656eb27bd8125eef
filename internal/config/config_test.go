package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(fixture("valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ListenPort != 5173 {
		t.Fatalf("ListenPort 应当被解析，得到 %d", cfg.Global.ListenPort)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 10*time.Second {
		t.Fatalf("UpstreamTimeout 解析错误: %s", cfg.Global.UpstreamTimeout.DurationValue())
	}
	if cfg.Worker.NavigationFallback != "/" {
		t.Fatalf("NavigationFallback 未设置时应默认 /，得到 %q", cfg.Worker.NavigationFallback)
	}
	if len(cfg.Worker.Manifest) != 8 {
		t.Fatalf("清单应包含 8 个条目，得到 %v", cfg.Worker.Manifest)
	}
	if cfg.Global.UpdatePolicy != UpdatePolicyPrompt {
		t.Fatalf("unexpected policy %s", cfg.Global.UpdatePolicy)
	}
	if cfg.Global.StoragePath == "./storage" {
		t.Fatalf("StoragePath 应被转换为绝对路径")
	}
}

func TestLoadAppliesWorkerDefaults(t *testing.T) {
	path := writeTempConfig(t, `
Origin = "https://notes.example.com"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Worker.CacheVersion != "notes-app-v2" {
		t.Fatalf("默认缓存版本应为 notes-app-v2，得到 %s", cfg.Worker.CacheVersion)
	}
	if cfg.Worker.OfflinePath != "/offline.html" {
		t.Fatalf("默认离线文档错误: %s", cfg.Worker.OfflinePath)
	}
	if len(cfg.Worker.Manifest) != len(DefaultManifest()) {
		t.Fatalf("默认清单错误: %v", cfg.Worker.Manifest)
	}
	if cfg.Global.StoreDriver != "fs" {
		t.Fatalf("默认驱动应为 fs，得到 %s", cfg.Global.StoreDriver)
	}
}

func TestLoadEmptyFallbackDisablesIt(t *testing.T) {
	path := writeTempConfig(t, `
Origin = "https://notes.example.com"

[Worker]
NavigationFallback = ""
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Worker.NavigationFallback != "" {
		t.Fatalf("显式空值应关闭导航兜底，得到 %q", cfg.Worker.NavigationFallback)
	}
}

func TestLoadFailsWithMissingOrigin(t *testing.T) {
	if _, err := Load(fixture("missing.toml")); err == nil {
		t.Fatalf("缺失 Origin 的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := writeTempConfig(t, `
Origin = "https://notes.example.com"
UpstreamTimeout = "boom"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateStoreDriver(t *testing.T) {
	for _, tc := range []struct {
		driver    string
		shouldErr bool
	}{
		{"fs", false},
		{"sqlite", false},
		{"", false},
		{"redis", true},
	} {
		cfg := validConfig()
		cfg.Global.StoreDriver = tc.driver
		err := cfg.Validate()
		if tc.shouldErr != (err != nil) {
			t.Fatalf("driver %q: unexpected result %v", tc.driver, err)
		}
	}
}

func TestValidateWorkerFields(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad version", func(c *Config) { c.Worker.CacheVersion = "../v1" }, "Worker.CacheVersion"},
		{"relative offline", func(c *Config) { c.Worker.OfflinePath = "offline.html" }, "Worker.OfflinePath"},
		{"bad fallback", func(c *Config) { c.Worker.NavigationFallback = "index" }, "Worker.NavigationFallback"},
		{"empty manifest", func(c *Config) { c.Worker.Manifest = nil }, "Worker.Manifest"},
		{"duplicate entry", func(c *Config) { c.Worker.Manifest = append(c.Worker.Manifest, "/") }, "Worker.Manifest[3]"},
		{"offline not cached", func(c *Config) { c.Worker.Manifest = []string{"/", "/index.html"} }, "Worker.Manifest"},
		{"scheme-relative entry", func(c *Config) { c.Worker.Manifest[0] = "//cdn.example.com/x.js" }, "Worker.Manifest[0]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			var fieldErr FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fieldErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, fieldErr.Field)
			}
		})
	}
}

func TestValidateOrigin(t *testing.T) {
	for _, origin := range []string{"", "ftp://notes.example.com", "https://", "https://notes.example.com/app"} {
		cfg := validConfig()
		cfg.Global.Origin = origin
		if err := cfg.Validate(); err == nil {
			t.Fatalf("origin %q should be rejected", origin)
		}
	}
}

func TestParseUpdatePolicy(t *testing.T) {
	cases := map[string]UpdatePolicy{
		"":       UpdatePolicyPrompt,
		"AUTO":   UpdatePolicyAuto,
		" never": UpdatePolicyNever,
	}
	for raw, want := range cases {
		got, err := ParseUpdatePolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParseUpdatePolicy(%q) = %s, %v", raw, got, err)
		}
	}
	if _, err := ParseUpdatePolicy("sometimes"); err == nil {
		t.Fatalf("未知策略应报错")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      5000,
			StoragePath:     "./storage",
			StoreDriver:     "fs",
			Origin:          "https://notes.example.com",
			UpstreamTimeout: Duration(30 * time.Second),
		},
		Worker: WorkerConfig{
			CacheVersion:       "notes-app-v2",
			OfflinePath:        "/offline.html",
			NavigationFallback: "/",
			Manifest:           []string{"/", "/index.html", "/offline.html"},
		},
	}
}
