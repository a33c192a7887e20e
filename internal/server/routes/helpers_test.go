package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/respcache/respcache/internal/cache"
	"github.com/respcache/respcache/internal/server"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRegistry(t *testing.T) *cache.Registry {
	t.Helper()
	root := t.TempDir()
	registry, err := cache.NewRegistry(cache.RegistryOptions{
		PurgeableRoot:  filepath.Join(root, "purgeable"),
		PersistentRoot: filepath.Join(root, "persistent"),
		Store:          cache.Options{Logger: quietLogger()},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app, err := server.NewApp(server.AppOptions{Logger: quietLogger(), ListenPort: 5000})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	return app
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func decodeJSON(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}
