package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch 监听配置文件，每次写入后重新 Load 并把结果交给 onChange。
// 解析失败时 cfg 为 nil、err 非空，调用方应继续沿用旧配置。
func Watch(path string, onChange func(cfg *Config, err error)) {
	if path == "" {
		path = "config.toml"
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(path)
		onChange(cfg, err)
	})
	v.WatchConfig()
}
