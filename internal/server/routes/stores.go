package routes

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/respcache/respcache/internal/cache"
	"github.com/respcache/respcache/internal/logging"
	"github.com/respcache/respcache/internal/server"
)

// 查找命中时携带的元数据响应头。
const (
	HeaderStatusCode = "X-Respcache-Status-Code"
	HeaderCachedAt   = "X-Respcache-Cached-At"
	HeaderExpiresAt  = "X-Respcache-Expires-At"
)

// RegisterStoreRoutes 暴露 /-/stores 诊断与维护接口：列出条目、查找、失效、清空与回收过期项。
func RegisterStoreRoutes(app *fiber.App, registry *cache.Registry, logger *logrus.Logger) {
	if app == nil || registry == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Get("/-/stores", func(c fiber.Ctx) error {
		behaviors := registry.Behaviors()
		payload := make([]storePayload, 0, len(behaviors))
		for _, b := range behaviors {
			store, _ := registry.Store(b)
			payload = append(payload, storePayload{
				Name:    string(b),
				Root:    registry.Root(b),
				Entries: len(store.Entries()),
			})
		}
		return c.JSON(fiber.Map{"stores": payload})
	})

	app.Get("/-/stores/:store/entries", func(c fiber.Ctx) error {
		b, store, ok := resolveStore(c, registry)
		if !ok {
			return renderStoreNotFound(c)
		}
		entries := store.Entries()
		payload := make([]entryPayload, 0, len(entries))
		for _, entry := range entries {
			payload = append(payload, encodeEntry(entry))
		}
		return c.JSON(fiber.Map{"store": string(b), "entries": payload})
	})

	app.Get("/-/stores/:store/lookup", func(c fiber.Ctx) error {
		_, store, ok := resolveStore(c, registry)
		if !ok {
			return renderStoreNotFound(c)
		}
		key := strings.TrimSpace(c.Query("url"))
		if key == "" {
			return renderURLRequired(c)
		}
		cached, hit := store.Get(key)
		if !hit {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cache_miss"})
		}
		c.Set(HeaderStatusCode, strconv.Itoa(cached.StatusCode))
		c.Set(HeaderCachedAt, cached.CachedAt.UTC().Format(time.RFC3339Nano))
		if cached.ExpiresAt != nil {
			c.Set(HeaderExpiresAt, cached.ExpiresAt.UTC().Format(time.RFC3339Nano))
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		return c.Send(cached.Body)
	})

	app.Delete("/-/stores/:store/entries", func(c fiber.Ctx) error {
		b, store, ok := resolveStore(c, registry)
		if !ok {
			return renderStoreNotFound(c)
		}
		key := strings.TrimSpace(c.Query("url"))
		if key == "" {
			return renderURLRequired(c)
		}
		store.Remove(key)
		logger.WithFields(logging.StoreFields(string(b), key)).
			WithFields(logrus.Fields{"action": "store_invalidate", "request_id": server.RequestID(c)}).
			Info("entry_invalidated")
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Delete("/-/stores/:store", func(c fiber.Ctx) error {
		b, store, ok := resolveStore(c, registry)
		if !ok {
			return renderStoreNotFound(c)
		}
		store.RemoveAll()
		logger.WithFields(logging.StoreFields(string(b), "")).
			WithFields(logrus.Fields{"action": "store_clear", "request_id": server.RequestID(c)}).
			Info("store_cleared")
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Post("/-/stores/:store/purge", func(c fiber.Ctx) error {
		b, store, ok := resolveStore(c, registry)
		if !ok {
			return renderStoreNotFound(c)
		}
		removed := store.PurgeExpired()
		logger.WithFields(logging.StoreFields(string(b), "")).
			WithFields(logrus.Fields{"action": "store_purge", "removed": removed, "request_id": server.RequestID(c)}).
			Info("expired_entries_purged")
		return c.JSON(fiber.Map{"store": string(b), "removed": removed})
	})
}

type storePayload struct {
	Name    string `json:"name"`
	Root    string `json:"root"`
	Entries int    `json:"entries"`
}

type entryPayload struct {
	URL        string     `json:"url"`
	StatusCode int        `json:"status_code"`
	CachedAt   time.Time  `json:"cached_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func encodeEntry(entry cache.Entry) entryPayload {
	return entryPayload{
		URL:        entry.Key,
		StatusCode: entry.StatusCode,
		CachedAt:   entry.CachedAt.UTC(),
		ExpiresAt:  entry.ExpiresAt,
	}
}

// resolveStore 解析 :store 路径参数；未知名称与未启用的 Store 同样视为不存在。
func resolveStore(c fiber.Ctx, registry *cache.Registry) (cache.Behavior, cache.Store, bool) {
	b, err := cache.ParseBehavior(c.Params("store"))
	if err != nil {
		return "", nil, false
	}
	store, ok := registry.Store(b)
	if !ok {
		return "", nil, false
	}
	return b, store, true
}

func renderStoreNotFound(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "store_not_found"})
}

func renderURLRequired(c fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
}
