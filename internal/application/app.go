package application

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/service"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/eventbus"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/monitoring"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/persistence"
	httpServer "github.com/ngoclaw/ngoclaw/bridge/internal/interfaces/http"
	"github.com/ngoclaw/ngoclaw/bridge/internal/interfaces/telegram"
	"github.com/ngoclaw/ngoclaw/bridge/internal/interfaces/websocket"
	apperrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
	"github.com/ngoclaw/ngoclaw/bridge/pkg/safego"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// recorderSize /api/v1/debug/events 保留的事件数
	recorderSize = 200

	snapshotInterval = time.Minute
)

// App 应用程序
type App struct {
	// 配置
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	// 仓储层
	linkRepo    repository.ChatLinkRepository
	chatInfos   repository.ChatInfoRepository
	messageLog  repository.MessageLogRepository
	writeQueue  *persistence.WriteQueue
	deferredLog *persistence.DeferredMessageLog

	// 领域服务
	flags    *config.FlagsWatcher
	cache    *service.DestinationCache
	resolver *service.Resolver

	// 应用服务
	slaves      *usecase.SlaveRegistry
	inbound     *usecase.InboundPipeline
	outbound    *usecase.OutboundPipeline
	linkManager *usecase.LinkManager
	chatPicker  *usecase.ChatPicker

	// 基础设施
	monitor  *monitoring.Monitor
	bus      eventbus.Bus
	recorder *eventbus.Recorder
	amqpSink atomic.Pointer[eventbus.AMQPSink]

	// 接口层
	telegramAdapter *telegram.Adapter
	slaveHub        *websocket.Hub
	httpServer      *httpServer.Server
}

// NewApp 创建应用程序（依赖注入容器）
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Bootstrap: ensure ~/.ngobridge/ exists with a default config on first run
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	// 初始化各层组件
	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := app.initDomainServices(); err != nil {
		app.closeDB()
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}

	if err := app.initInfrastructure(); err != nil {
		app.closeDB()
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initApplicationServices(); err != nil {
		app.closeDB()
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}

	if err := app.initInterfaces(); err != nil {
		app.closeDB()
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}

	return app, nil
}

// initRepositories 初始化仓储层
func (app *App) initRepositories() error {
	app.logger.Info("Initializing repositories")

	// 连接数据库
	db, err := persistence.NewDBConnection(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	// 初始化 GORM 仓储
	app.linkRepo = persistence.NewGormChatLinkRepository(db)
	app.chatInfos = persistence.NewGormChatInfoRepository(db)
	app.messageLog = persistence.NewGormMessageLogRepository(db)

	// 关联日志写入走单写者队列
	app.writeQueue = persistence.NewWriteQueue(app.logger, app.config.Relay.WriteQueueSize)
	app.deferredLog = persistence.NewDeferredMessageLog(app.messageLog, app.writeQueue, app.logger)

	return nil
}

// initDomainServices 初始化领域服务
func (app *App) initDomainServices() error {
	app.logger.Info("Initializing domain services")

	flags, err := config.NewFlagsWatcher(app.config.File, app.config.Relay, app.config.Telegram.Admins, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create flags watcher: %w", err)
	}
	app.flags = flags

	relay := flags.Relay()
	app.cache = service.NewDestinationCache(
		service.CacheMode(relay.SendToLastChat),
		relay.DestinationCacheSize,
		relay.DestinationCacheTTL,
	)
	flags.OnChange(func(r config.RelayConfig) {
		app.cache.SetMode(service.CacheMode(r.SendToLastChat))
	})

	app.resolver = service.NewResolver(app.linkRepo, app.messageLog, app.cache, app.fallbackChat, app.logger)
	return nil
}

// fallbackChat 未绑定从会话的消息投递到 relay.fallback_chat
func (app *App) fallbackChat() entity.MasterChatUID {
	return entity.MasterChatUID(app.flags.Relay().FallbackChat)
}

// initInfrastructure 初始化基础设施
func (app *App) initInfrastructure() error {
	app.logger.Info("Initializing infrastructure")

	app.monitor = monitoring.NewMonitor(app.logger)

	// 事件日志写入 ~/.ngobridge/logs/events.jsonl, 失败时退回内存总线
	if app.config.Events.Journal {
		bus, err := eventbus.NewPersistentBus(eventbus.PersistentBusConfig{
			Dir: filepath.Join(config.HomeDir(), "logs"),
		}, app.logger)
		if err != nil {
			app.logger.Warn("Event journal unavailable, using in-memory bus", zap.Error(err))
		} else {
			app.bus = bus
		}
	}
	if app.bus == nil {
		app.bus = eventbus.NewInMemoryBus(app.logger, 256)
	}
	app.recorder = eventbus.NewRecorder(app.bus, recorderSize)

	// Telegram 主平台
	if app.config.Telegram.BotToken != "" {
		adapter, err := telegram.NewAdapter(&telegram.Config{
			BotToken:    app.config.Telegram.BotToken,
			Admins:      app.config.Telegram.Admins,
			Debug:       app.config.Telegram.Debug,
			PollTimeout: app.config.Telegram.PollTimeout,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create telegram adapter: %w", err)
		}
		app.telegramAdapter = adapter
	} else {
		app.logger.Warn("Telegram bot token not configured, master side disabled")
	}

	return nil
}

// initApplicationServices 初始化应用服务
func (app *App) initApplicationServices() error {
	app.logger.Info("Initializing application services")

	app.slaves = usecase.NewSlaveRegistry(app.logger)

	var notifier usecase.MasterNotifier = detachedMaster{}
	var renderer entity.Renderer
	if app.telegramAdapter != nil {
		notifier = app.telegramAdapter
		renderer = app.telegramAdapter.Renderer()
	}

	deps := usecase.PipelineDeps{
		Resolver:  app.resolver,
		Slaves:    app.slaves,
		Log:       app.messageLog,
		LogWriter: app.deferredLog,
		ChatInfos: app.chatInfos,
		Flags:     app.flags,
		Notifier:  notifier,
		Hook: usecase.RelayHooks{
			monitoring.NewMetricsHook(app.monitor, app.logger),
			eventbus.NewPublisher(app.bus),
		},
		Logger: app.logger,
	}

	relay := app.flags.Relay()
	suggestions := usecase.NewSuggestionStore(relay.SuggestionTTL, 0)
	app.inbound = usecase.NewInboundPipeline(deps, suggestions, relay.InboundQueueSize)
	app.outbound = usecase.NewOutboundPipeline(deps, renderer)
	app.linkManager = usecase.NewLinkManager(app.linkRepo, app.chatInfos, app.slaves, app.cache, app.flags, app.logger)
	app.chatPicker = usecase.NewChatPicker(app.linkManager, app.slaves, usecase.NewSuggestionStore(relay.SuggestionTTL, 0), app.deferredLog, app.logger)

	return nil
}

// initInterfaces 初始化接口层
func (app *App) initInterfaces() error {
	app.logger.Info("Initializing interfaces")

	if app.telegramAdapter != nil {
		app.telegramAdapter.SetInboundSink(app.inbound)
		app.inbound.SetPrompter(app.telegramAdapter)

		commands := telegram.NewCommandRegistry()
		telegram.RegisterBridgeCommands(commands, app.linkManager)
		app.telegramAdapter.SetCommandRegistry(commands)
		app.telegramAdapter.SetChatPicker(app.chatPicker)
	}

	// 远程从通道 websocket 接入
	app.slaveHub = websocket.NewHub(app.slaves, app.outbound, app.config.Slaves.Tokens, app.config.Slaves.RequestTimeout, app.logger)
	app.slaveHub.SetObserver(eventbus.NewPublisher(app.bus))

	app.monitor.RegisterGauge("bridge_inbound_pending", "Master events waiting for the inbound worker", func() float64 {
		return float64(app.inbound.Pending())
	})
	app.monitor.RegisterGauge("bridge_write_queue_pending", "Correlation log writes not yet applied", func() float64 {
		return float64(app.writeQueue.Pending())
	})
	app.monitor.RegisterGauge("bridge_slave_channels", "Registered slave channels", func() float64 {
		return float64(len(app.slaves.List()))
	})
	app.monitor.RegisterGauge("bridge_slave_connections", "Connected remote slave channels", func() float64 {
		return float64(app.slaveHub.Count())
	})
	if counter, ok := app.bus.(interface{ Dropped() uint64 }); ok {
		app.monitor.RegisterGauge("bridge_events_dropped", "Events dropped because the bus buffer was full", func() float64 {
			return float64(counter.Dropped())
		})
	}

	if app.config.HTTP.Enabled {
		app.httpServer = httpServer.NewServer(httpServer.Config{
			Host:  app.config.HTTP.Host,
			Port:  app.config.HTTP.Port,
			Mode:  app.config.HTTP.Mode,
			Token: app.config.HTTP.Token,
		}, httpServer.Deps{
			Links:       app.linkManager,
			Log:         app.messageLog,
			Slaves:      app.slaves,
			Worker:      app.inbound,
			Monitor:     app.monitor,
			Events:      app.recorder,
			SlaveSocket: app.slaveHub,
		}, app.logger)
	} else if len(app.config.Slaves.Tokens) > 0 {
		app.logger.Warn("Remote slave tokens configured but HTTP is disabled, /slave/ws is unreachable")
	}

	return nil
}

// Start 启动应用程序
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("Starting application")

	if err := app.flags.Start(ctx); err != nil {
		app.logger.Warn("Relay flags hot reload disabled", zap.Error(err))
	}

	app.inbound.Start()
	safego.Go(app.logger, "metrics-collector", func() {
		app.monitor.StartCollector(ctx, snapshotInterval)
	})

	if app.config.Events.AMQPURL != "" {
		safego.Go(app.logger, "amqp-dial", func() { app.connectAMQP(ctx) })
	}

	// 启动HTTP服务器
	if app.httpServer != nil {
		if err := app.httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	// 启动Telegram适配器
	if app.telegramAdapter != nil {
		if err := app.telegramAdapter.Start(ctx); err != nil {
			return fmt.Errorf("failed to start telegram adapter: %w", err)
		}
	}

	app.logger.Info("Application started successfully")
	return nil
}

// Stop 停止应用程序
// 先停止入口, 再排空入站队列与写队列, 最后关闭数据库
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application")

	// 停止Telegram适配器
	if app.telegramAdapter != nil {
		app.telegramAdapter.Stop()
	}

	// 断开远程从通道
	app.slaveHub.Close()

	// 停止HTTP服务器
	if app.httpServer != nil {
		if err := app.httpServer.Stop(ctx); err != nil {
			app.logger.Error("Failed to stop HTTP server", zap.Error(err))
		}
	}

	if err := app.inbound.Stop(ctx); err != nil {
		app.logger.Error("Inbound pipeline did not drain", zap.Error(err))
	}
	if err := app.writeQueue.Close(ctx); err != nil {
		app.logger.Error("Write queue did not drain", zap.Error(err))
	}

	app.bus.Close()
	if sink := app.amqpSink.Swap(nil); sink != nil {
		if err := sink.Close(); err != nil {
			app.logger.Warn("Failed to close AMQP sink", zap.Error(err))
		}
	}
	if err := app.flags.Close(); err != nil {
		app.logger.Warn("Failed to close flags watcher", zap.Error(err))
	}

	// 关闭数据库连接
	app.closeDB()

	app.logger.Info("Application stopped successfully")
	return nil
}

// connectAMQP dials RabbitMQ in the background so a slow broker never
// delays startup. Events published before the connection are not forwarded.
func (app *App) connectAMQP(ctx context.Context) {
	sink, err := eventbus.DialAMQPSink(ctx, eventbus.AMQPSinkConfig{
		URL:      app.config.Events.AMQPURL,
		Exchange: app.config.Events.Exchange,
	}, app.logger)
	if err != nil {
		app.logger.Error("Event forwarding to AMQP disabled", zap.Error(err))
		return
	}
	sink.Attach(app.bus)
	app.amqpSink.Store(sink)
	app.logger.Info("Forwarding events to AMQP", zap.String("exchange", app.config.Events.Exchange))
}

func (app *App) closeDB() {
	if app.db == nil {
		return
	}
	if err := persistence.CloseDB(app.db); err != nil {
		app.logger.Error("Failed to close database connection", zap.Error(err))
	}
	app.db = nil
}

// Logger returns the application logger
func (app *App) Logger() *zap.Logger {
	return app.logger
}

// AppConfig returns the application config
func (app *App) AppConfig() *config.Config {
	return app.config
}

// Slaves 从通道注册表, 供进程内从通道注册
func (app *App) Slaves() *usecase.SlaveRegistry {
	return app.slaves
}

// Outbound 从 → 主管线, 进程内从通道向这里推送消息
func (app *App) Outbound() *usecase.OutboundPipeline {
	return app.outbound
}

// detachedMaster stands in for the master side when no bot token is set.
type detachedMaster struct{}

func (detachedMaster) Notify(ctx context.Context, chat entity.MasterChatUID, replyTo string, text string) error {
	return apperrors.NewServiceUnavailableError("master channel not configured", nil)
}

func (detachedMaster) DeleteMessage(ctx context.Context, chat entity.MasterChatUID, messageID string) error {
	return apperrors.NewServiceUnavailableError("master channel not configured", nil)
}
