package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/respcache/respcache/internal/cache"
	"github.com/respcache/respcache/internal/config"
	"github.com/respcache/respcache/internal/server"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv(configEnvVar, "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsDefaultsAndErrors(t *testing.T) {
	t.Setenv(configEnvVar, "")

	opts, err := parseCLIFlags([]string{"--check-config"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "config.toml" || !opts.checkOnly {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := parseCLIFlags([]string{"--bogus"}); err == nil {
		t.Fatalf("未知参数应返回错误")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "conflict.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "Cache.PersistentPath") {
		t.Fatalf("错误输出应包含字段路径，得到 %s", stdErrBuffer().String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "respcache") {
		t.Fatalf("version 输出应包含 respcache 标识")
	}
}

func TestBuildAppServesFetchAndStores(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=600")
		_, _ = w.Write([]byte("payload"))
	}))
	defer upstream.Close()

	root := t.TempDir()
	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, LogLevel: "info"},
		Cache: config.CacheConfig{
			PurgeablePath:  filepath.Join(root, "purgeable"),
			PersistentPath: filepath.Join(root, "persistent"),
			DefaultPolicy:  "response-headers",
			DefaultStore:   "purgeable",
		},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry, err := cache.NewRegistry(cache.RegistryOptions{
		PurgeableRoot:  cfg.Cache.PurgeablePath,
		PersistentRoot: cfg.Cache.PersistentPath,
		Store:          cache.Options{Logger: logger},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	defer registry.Close()

	app, err := buildApp(cfg, registry, server.NewHTTPTransport(upstream.Client()), logger)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}

	target := upstream.URL + "/item"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/-/fetch?url="+url.QueryEscape(target), nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from fetch, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/-/stores/purgeable/lookup?url="+url.QueryEscape(target), nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "payload" {
		t.Fatalf("fetch should populate the default store, got %d %s", resp.StatusCode, body)
	}
}
