package config

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/respcache/respcache/internal/cache"
	"github.com/respcache/respcache/internal/expiration"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if g.LogMaxSize < 0 {
		return newFieldError("Global.LogMaxSize", "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxBackups", "不能为负数")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	cc := c.Cache
	if strings.TrimSpace(cc.PurgeablePath) == "" && strings.TrimSpace(cc.PersistentPath) == "" {
		return newFieldError("Cache.PurgeablePath/PersistentPath", "至少需要配置一个缓存目录")
	}
	// 两个 Store 共享同一物理目录会互相破坏 journal。
	if cc.PurgeablePath != "" && cc.PersistentPath != "" &&
		filepath.Clean(cc.PurgeablePath) == filepath.Clean(cc.PersistentPath) {
		return newFieldError("Cache.PersistentPath", "不能与 PurgeablePath 相同")
	}

	if _, err := expiration.ParseKind(cc.DefaultPolicy); err != nil {
		return newFieldError("Cache.DefaultPolicy", "仅支持 do-not-cache/never-expires/expire-at/response-headers")
	}
	behavior, err := cache.ParseBehavior(cc.DefaultStore)
	if err != nil {
		return newFieldError("Cache.DefaultStore", "仅支持 purgeable/persistent")
	}
	if c.StoreRoot(behavior) == "" {
		return newFieldError("Cache.DefaultStore", "对应的缓存目录未配置")
	}
	if cc.DefaultTTL.DurationValue() < 0 {
		return newFieldError("Cache.DefaultTTL", "不能为负数")
	}

	return nil
}

// StoreRoot 返回指定生命周期的根目录，未配置时为空字符串。
func (c *Config) StoreRoot(b cache.Behavior) string {
	switch b {
	case cache.BehaviorPurgeable:
		return strings.TrimSpace(c.Cache.PurgeablePath)
	case cache.BehaviorPersistent:
		return strings.TrimSpace(c.Cache.PersistentPath)
	default:
		return ""
	}
}
