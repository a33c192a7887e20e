package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/respcache/respcache/internal/cache"
	"github.com/respcache/respcache/internal/config"
	"github.com/respcache/respcache/internal/expiration"
	"github.com/respcache/respcache/internal/logging"
	"github.com/respcache/respcache/internal/server"
	"github.com/respcache/respcache/internal/server/routes"
)

// configEnvVar 在未传 --config 时提供配置路径。
const configEnvVar = "RESPCACHE_CONFIG"

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["purgeable_root"] = cfg.Cache.PurgeablePath
		fields["persistent_root"] = cfg.Cache.PersistentPath
		fields["default_policy"] = cfg.Cache.DefaultPolicy
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 日志 → Store 注册表 → 上游 transport → Fiber server。
	// 注册表只构建一次，所有路由共享同一组 Store 实例。
	registry, err := cache.NewRegistry(cache.RegistryOptions{
		PurgeableRoot:  cfg.Cache.PurgeablePath,
		PersistentRoot: cfg.Cache.PersistentPath,
		Store:          cache.Options{Logger: logger},
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.WithError(err).WithField("action", "shutdown").Warn("store_close_failed")
		}
	}()

	transport := server.NewHTTPTransport(server.NewUpstreamClient(cfg))

	fields := logging.BaseFields("startup", opts.configPath)
	fields["stores"] = registry.Behaviors()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["default_store"] = cfg.Cache.DefaultStore
	fields["default_policy"] = cfg.Cache.DefaultPolicy
	fields["version"] = versionString()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, registry, transport, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("respcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 RESPCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnvVar)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// buildApp 组装 Fiber 应用与全部 /-/ 路由，供启动与集成测试复用。
func buildApp(cfg *config.Config, registry *cache.Registry, transport *server.HTTPTransport, logger *logrus.Logger) (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}

	// Validate 已确保默认值合法，这里的解析不会失败。
	policy, _ := expiration.ParseKind(cfg.Cache.DefaultPolicy)
	store, _ := cache.ParseBehavior(cfg.Cache.DefaultStore)

	routes.RegisterStoreRoutes(app, registry, logger)
	routes.RegisterFetchRoutes(app, routes.FetchOptions{
		Registry:      registry,
		Transport:     transport,
		Logger:        logger,
		DefaultPolicy: policy,
		DefaultStore:  store,
		DefaultTTL:    cfg.Cache.DefaultTTL.DurationValue(),
	})
	return app, nil
}

func startHTTPServer(cfg *config.Config, registry *cache.Registry, transport *server.HTTPTransport, logger *logrus.Logger) error {
	app, err := buildApp(cfg, registry, transport, logger)
	if err != nil {
		return err
	}

	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
