package routes

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/respcache/respcache/internal/cache"
	"github.com/respcache/respcache/internal/expiration"
	"github.com/respcache/respcache/internal/revalidate"
	"github.com/respcache/respcache/internal/server"
)

// FetchOptions 描述 /-/fetch 的依赖与缺省值，缺省值来自 [Cache] 配置。
type FetchOptions struct {
	Registry      *cache.Registry
	Transport     revalidate.Transport
	Logger        *logrus.Logger
	DefaultPolicy expiration.Kind
	DefaultStore  cache.Behavior
	DefaultTTL    time.Duration
	// Now 仅供测试注入，nil 时使用 time.Now。
	Now func() time.Time
}

// RegisterFetchRoutes 暴露 /-/fetch：经由 revalidate.Client 访问上游，并以 JSON 返回全部投递结果。
func RegisterFetchRoutes(app *fiber.App, opts FetchOptions) {
	if app == nil || opts.Registry == nil || opts.Transport == nil {
		return
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	handler := func(c fiber.Ctx) error {
		target := strings.TrimSpace(c.Query("url"))
		if target == "" {
			return renderURLRequired(c)
		}

		behavior := opts.DefaultStore
		if raw := c.Query("store"); raw != "" {
			parsed, err := cache.ParseBehavior(raw)
			if err != nil {
				return renderStoreNotFound(c)
			}
			behavior = parsed
		}
		store, ok := opts.Registry.Store(behavior)
		if !ok {
			return renderStoreNotFound(c)
		}

		policy, err := buildPolicy(c, opts)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		method := strings.ToUpper(strings.TrimSpace(c.Query("method", c.Method())))
		req := revalidate.Request{
			URL:    target,
			Method: method,
			Policy: policy,
		}
		if accept := c.Get(fiber.HeaderAccept); accept != "" {
			req.Headers = map[string]string{fiber.HeaderAccept: accept}
		}
		if method != http.MethodGet && method != http.MethodHead {
			req.Body = append([]byte(nil), c.Body()...)
		}

		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		client := revalidate.NewClient(opts.Transport, store, opts.Logger).WithClock(opts.Now)
		deliveries, err := client.Fetch(ctx, req)
		if err != nil {
			opts.Logger.WithError(err).WithFields(logrus.Fields{
				"action":     "fetch",
				"url":        target,
				"request_id": server.RequestID(c),
			}).Warn("fetch_cancelled")
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "request_cancelled"})
		}

		status := fiber.StatusBadGateway
		payload := make([]deliveryPayload, 0, len(deliveries))
		for _, d := range deliveries {
			if !d.Failed() {
				status = fiber.StatusOK
			}
			payload = append(payload, encodeDelivery(d))
		}
		return c.Status(status).JSON(fetchPayload{
			URL:        target,
			Store:      string(behavior),
			Policy:     policy.String(),
			Deliveries: payload,
		})
	}

	app.Get("/-/fetch", handler)
	app.Post("/-/fetch", handler)
}

type fetchPayload struct {
	URL        string            `json:"url"`
	Store      string            `json:"store"`
	Policy     string            `json:"policy"`
	Deliveries []deliveryPayload `json:"deliveries"`
}

type deliveryPayload struct {
	Source     string     `json:"source"`
	StatusCode int        `json:"status_code,omitempty"`
	Body       string     `json:"body,omitempty"`
	CachedAt   *time.Time `json:"cached_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func encodeDelivery(d revalidate.Delivery) deliveryPayload {
	if d.Failed() {
		return deliveryPayload{Source: "failure", Error: d.Err.Error()}
	}
	out := deliveryPayload{
		Source:     d.Source.String(),
		StatusCode: d.StatusCode,
		Body:       string(d.Body),
	}
	if !d.CachedAt.IsZero() {
		cachedAt := d.CachedAt.UTC()
		out.CachedAt = &cachedAt
	}
	return out
}

type queryError string

func (e queryError) Error() string { return string(e) }

// buildPolicy 根据 policy 与 expires_at 参数构造过期策略。expires_at 接受
// RFC3339 或 Unix 秒；缺省时为当前时间加 DefaultTTL。
func buildPolicy(c fiber.Ctx, opts FetchOptions) (expiration.Policy, error) {
	kind := opts.DefaultPolicy
	if raw := c.Query("policy"); raw != "" {
		parsed, err := expiration.ParseKind(raw)
		if err != nil {
			return expiration.Policy{}, queryError("invalid_policy")
		}
		kind = parsed
	}

	switch kind {
	case expiration.KindNeverExpires:
		return expiration.NeverExpires(), nil
	case expiration.KindFromResponseHeaders:
		return expiration.FromResponseHeaders(), nil
	case expiration.KindExpireAt:
		raw := strings.TrimSpace(c.Query("expires_at"))
		if raw == "" {
			return expiration.ExpireAt(opts.Now().Add(opts.DefaultTTL)), nil
		}
		if at, err := time.Parse(time.RFC3339, raw); err == nil {
			return expiration.ExpireAt(at), nil
		}
		if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return expiration.ExpireAt(time.Unix(seconds, 0)), nil
		}
		return expiration.Policy{}, queryError("invalid_expires_at")
	default:
		return expiration.DoNotCache(), nil
	}
}
