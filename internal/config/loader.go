package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyCacheDefaults(&cfg.Cache)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := absolutizeRoots(&cfg.Cache); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("Cache.DefaultPolicy", "response-headers")
	v.SetDefault("Cache.DefaultStore", "purgeable")
	v.SetDefault("Cache.DefaultTTL", "1h")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

// applyCacheDefaults 在未配置根目录时回落到系统缓存目录与用户配置目录，
// 分别对应可回收与持久两种生命周期。
func applyCacheDefaults(c *CacheConfig) {
	if strings.TrimSpace(c.PurgeablePath) == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			c.PurgeablePath = dir
		}
	}
	if strings.TrimSpace(c.PersistentPath) == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.PersistentPath = dir
		}
	}
	c.DefaultPolicy = strings.ToLower(strings.TrimSpace(c.DefaultPolicy))
	if c.DefaultPolicy == "" {
		c.DefaultPolicy = "response-headers"
	}
	c.DefaultStore = strings.ToLower(strings.TrimSpace(c.DefaultStore))
	if c.DefaultStore == "" {
		c.DefaultStore = "purgeable"
	}
	if c.DefaultTTL.DurationValue() == 0 {
		c.DefaultTTL = Duration(time.Hour)
	}
}

func absolutizeRoots(c *CacheConfig) error {
	for _, item := range []struct {
		field string
		value *string
	}{
		{"Cache.PurgeablePath", &c.PurgeablePath},
		{"Cache.PersistentPath", &c.PersistentPath},
	} {
		abs, err := filepath.Abs(*item.value)
		if err != nil {
			return fmt.Errorf("%s: 无法解析缓存目录: %w", item.field, err)
		}
		*item.value = abs
	}
	return nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
