package app

import (
	"errors"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/provider"
	"github.com/qr-backend/internal/queue"
	"github.com/qr-backend/internal/router"
	"github.com/qr-backend/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, err
	}

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		httpService := NewHTTPService(addr, engine)
		services = append(services, httpService)
	}

	// 初始化 Worker 服务
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		switch {
		case errors.Is(err, queue.ErrQueueDisabled) && mode == ModeAll:
			// 队列未启用时批处理任务在请求内同步执行
			logger.Infow("app_worker_skipped_queue_disabled")
		case err != nil:
			_ = container.Close()
			return nil, err
		default:
			services = append(services, workerService)
		}
	}

	if len(services) == 0 {
		_ = container.Close()
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.closers = append(runner.closers, container.Close, models.CloseDB)
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
