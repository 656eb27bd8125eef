package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/quicknotes/offline-hub/internal/cache"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := &c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	driver := g.StoreDriver
	if driver == "" {
		driver = cache.DefaultDriverName()
	}
	if _, ok := cache.ResolveDriver(driver); !ok {
		return newFieldError("Global.StoreDriver", fmt.Sprintf("未注册的存储驱动: %s", g.StoreDriver))
	}
	if err := validateOrigin(g.Origin); err != nil {
		return fmt.Errorf("Global.Origin: %w", err)
	}
	policy, err := ParseUpdatePolicy(string(g.UpdatePolicy))
	if err != nil {
		return newFieldError("Global.UpdatePolicy", "仅支持 prompt/auto/never")
	}
	g.UpdatePolicy = policy

	return c.Worker.validate()
}

func (w WorkerConfig) validate() error {
	if err := w.Version().Validate(); err != nil {
		return newFieldError("Worker.CacheVersion", err.Error())
	}
	if !isOriginRelative(w.OfflinePath) {
		return newFieldError("Worker.OfflinePath", "必须是以 / 开头的路径")
	}
	if w.NavigationFallback != "" && !isOriginRelative(w.NavigationFallback) {
		return newFieldError("Worker.NavigationFallback", "必须为空或以 / 开头")
	}
	if len(w.Manifest) == 0 {
		return newFieldError("Worker.Manifest", "至少需要一个条目")
	}

	seen := map[string]struct{}{}
	hasOffline := false
	for i, entry := range w.Manifest {
		if !isOriginRelative(entry) {
			return newFieldError(manifestField(i), "必须是以 / 开头的路径")
		}
		if _, exists := seen[entry]; exists {
			return newFieldError(manifestField(i), "重复")
		}
		seen[entry] = struct{}{}
		if entry == w.OfflinePath {
			hasOffline = true
		}
	}
	if !hasOffline {
		return newFieldError("Worker.Manifest", "必须包含 OfflinePath")
	}
	return nil
}

func isOriginRelative(path string) bool {
	return strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//")
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("源站不应包含路径: %s", raw)
	}
	return nil
}
