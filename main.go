package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/heimdall/heimdall/internal/config"
	"github.com/heimdall/heimdall/internal/logging"
	"github.com/heimdall/heimdall/internal/metrics"
	"github.com/heimdall/heimdall/internal/plugin"
	"github.com/heimdall/heimdall/internal/probe"
	"github.com/heimdall/heimdall/internal/proxy"
	"github.com/heimdall/heimdall/internal/server"
	"github.com/heimdall/heimdall/internal/server/routes"
	"github.com/heimdall/heimdall/internal/version"
)

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
		return checkConfig(cfg, logger, opts.configPath)
	}

	collector := metrics.NewCollector(nil)
	root, err := newRoot(cfg, logger, collector)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化插件失败: %v\n", err)
		return 1
	}

	// 启动顺序为“配置 → 启动探测 + 插件配置 → 配置监听 → Fiber server”，
	// 插件配置被拒绝时进程直接退出，不对外提供服务。
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload, err := readPluginPayload(cfg.Global.PluginConfig)
	if err != nil {
		fmt.Fprintf(stdErr, "读取插件配置失败: %v\n", err)
		return 1
	}
	if err := root.Configure(ctx, payload); err != nil {
		fmt.Fprintf(stdErr, "插件配置被拒绝: %v\n", err)
		return 1
	}

	if cfg.Global.WatchPluginConfig {
		go watchPluginConfig(ctx, cfg, root, logger)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["upstream"] = cfg.Global.Upstream
	fields["redis_nodes"] = len(root.Nodes())
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, root, collector, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// checkConfig 校验宿主配置与插件负载，不执行启动探测。
func checkConfig(cfg *config.Config, logger *logrus.Logger, configPath string) int {
	fields := logging.BaseFields("check_config", configPath)
	payload, err := readPluginPayload(cfg.Global.PluginConfig)
	if err == nil && len(payload) > 0 {
		var conf plugin.Conf
		if conf, err = plugin.ParseConf(payload); err == nil {
			fields["redis_nodes"] = len(conf.RedisNodes)
		}
	}
	if err != nil {
		fmt.Fprintf(stdErr, "插件配置无效: %v\n", err)
		return 1
	}
	fields["upstream"] = cfg.Global.Upstream
	fields["result"] = "ok"
	logger.WithFields(fields).Info("配置校验通过")
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("heimdall", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 HEIMDALL_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("HEIMDALL_CONFIG")
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

func newRoot(cfg *config.Config, logger *logrus.Logger, collector *metrics.Collector) (*plugin.Root, error) {
	fallback, err := cfg.Probe.FallbackAddr()
	if err != nil {
		return nil, err
	}
	prober := probe.New(probe.Options{
		Target: probe.Target{
			Hostname: cfg.Probe.Hostname,
			Scheme:   cfg.Probe.Scheme,
			Path:     cfg.Probe.Path,
			Fallback: fallback,
		},
		Resolver: net.DefaultResolver,
		Client:   &fasthttp.Client{Name: "heimdall-probe"},
		Logger:   logger,
		Timeout:  cfg.Probe.Timeout.DurationValue(),
	})
	return plugin.NewRoot(plugin.Options{
		Logger:        logger,
		Metrics:       collector,
		Prober:        prober,
		ProbeFailFast: cfg.Probe.FailFast,
		MaxBodyBytes:  cfg.Global.MaxBufferedBody,
	})
}

// readPluginPayload 读取插件 JSON 负载；未配置路径时返回 nil，等价于宿主未提供配置。
func readPluginPayload(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("插件配置不存在: %s", path)
		}
		return nil, err
	}
	return payload, nil
}

// watchPluginConfig 在负载文件变更后重新执行配置，失败时保留上一份配置。
func watchPluginConfig(ctx context.Context, cfg *config.Config, root *plugin.Root, logger *logrus.Logger) {
	path := cfg.Global.PluginConfig
	reload := func() {
		fields := logging.ReloadFields(path, len(root.Nodes()))
		payload, err := readPluginPayload(path)
		if err == nil {
			err = root.Configure(ctx, payload)
		}
		if err != nil {
			logger.WithFields(fields).WithError(err).Error("plugin reload failed, keeping previous configuration")
			return
		}
		fields["nodes"] = len(root.Nodes())
		logger.WithFields(fields).Info("plugin configuration reloaded")
	}
	if err := config.WatchFile(ctx, path, cfg.Global.WatchDebounce.DurationValue(), logger, reload); err != nil {
		logger.WithFields(logging.ReloadFields(path, len(root.Nodes()))).WithError(err).Error("plugin watcher stopped")
	}
}

// buildApp 组装 Fiber 应用：拦截流水线 + /-/ 诊断接口。
func buildApp(cfg *config.Config, root *plugin.Root, collector *metrics.Collector, logger *logrus.Logger) (*fiber.App, error) {
	handler, err := proxy.NewHandler(proxy.Options{
		Client:    server.NewUpstreamClient(cfg),
		Upstream:  cfg.Global.Upstream,
		Factory:   root,
		Logger:    logger,
		ChunkSize: cfg.Global.BodyChunkSize,
	})
	if err != nil {
		return nil, err
	}
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, root, collector)
	return app, nil
}

func startHTTPServer(cfg *config.Config, root *plugin.Root, collector *metrics.Collector, logger *logrus.Logger) error {
	app, err := buildApp(cfg, root, collector, logger)
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
