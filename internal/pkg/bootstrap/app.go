// Package bootstrap 封装了服务通用的启动和优雅关停逻辑。
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"upsell/internal/pkg/logger"
	"upsell/internal/pkg/nacos"
	"upsell/internal/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

// AppCtx 是各服务在启动时拿到的上下文，用来挂路由和后台任务。
type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未配置 Nacos 时为 nil
	Config Config

	workers *[]func(ctx context.Context) error
	closers *[]func(ctx context.Context) error
}

// Go 注册一个随服务运行的后台任务，ctx 在关停时取消。
func (a AppCtx) Go(fn func(ctx context.Context) error) {
	*a.workers = append(*a.workers, fn)
}

// OnShutdown 注册一个关停钩子，按注册的逆序执行。
func (a AppCtx) OnShutdown(fn func(ctx context.Context) error) {
	*a.closers = append(*a.closers, fn)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) error
}

// StartService 启动服务并阻塞到收到 SIGINT/SIGTERM 或某个后台任务失败。
func StartService(info AppInfo) error {
	cfg := GetCurrentConfig()
	if info.Port == 0 {
		info.Port = cfg.App.Port
	}

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return errors.Wrap(err, "failed to initialize tracer provider")
	}

	// 2. Nacos 是可选的，没有配置地址时跳过注册
	var namingClient *nacos.Client
	var ip string
	if cfg.Infra.Nacos.ServerAddrs != "" {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return err
		}
		if ip, err = getOutboundIP(); err != nil {
			return errors.Wrap(err, "failed to get outbound IP address")
		}
	}

	// 3. 注册路由和后台任务
	var workers, closers []func(ctx context.Context) error
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	appCtx := AppCtx{Mux: mux, Nacos: namingClient, Config: cfg, workers: &workers, closers: &closers}
	if info.RegisterHandlers != nil {
		if err := info.RegisterHandlers(appCtx); err != nil {
			return errors.Wrapf(err, "failed to set up %s", info.ServiceName)
		}
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           logger.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// 4. HTTP Server
	g.Go(func() error {
		logger.L().Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("🚀 listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "could not listen on %s", server.Addr)
		}
		return nil
	})
	for _, w := range workers {
		w := w
		g.Go(func() error { return w(gctx) })
	}

	// 5. 服务起来之后再注册到 Nacos
	if namingClient != nil {
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			stop()
			_ = server.Close()
			return err
		}
	}

	// 6. 优雅关停
	g.Go(func() error {
		<-gctx.Done()
		logger.L().Info().Str("service", info.ServiceName).Msg("Shutting down service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// a. 先从 Nacos 注销，不再接新流量
		if namingClient != nil {
			if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
				logger.L().Error().Err(err).Msg("Error deregistering from Nacos")
			}
			namingClient.Close()
		}
		// b. 关闭 HTTP 服务器
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L().Error().Err(err).Msg("Error shutting down http server")
		}
		// c. 各服务自己的资源，后注册先关闭
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](shutdownCtx); err != nil {
				logger.L().Error().Err(err).Msg("Error running shutdown hook")
			}
		}
		// d. 最后关闭 Tracer Provider，把缓冲的 span 发出去
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.L().Error().Err(err).Msg("Error shutting down tracer provider")
		}
		return nil
	})

	err = g.Wait()
	logger.L().Info().Str("service", info.ServiceName).Msg("Service gracefully shut down.")
	return err
}

// getOutboundIP 返回本机访问外网时使用的地址，用于服务注册。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
