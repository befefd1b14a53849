package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/bridge/internal/application"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/logger"
	"github.com/ngoclaw/ngoclaw/bridge/internal/interfaces/cli"
)

const (
	cliVersion = "0.1.0"
	cliName    = "bridgectl"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           cliName,
		Short:         "NGOBridge control tool",
		Long:          "NGOBridge 管理工具: 会话绑定、消息关联日志、事件日志与环境诊断",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Int("width", 100, "输出宽度")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动桥接服务 (Telegram + 管理接口 + 远程从通道)",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "显示桥接状态",
		RunE:  runStatus,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "环境诊断",
		RunE:  runDoctor,
	})

	rootCmd.AddCommand(linksCommand(), chatsCommand(), logCommand(), eventsCommand(), configCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.NewRenderer(0).RenderError(err))
		os.Exit(1)
	}
}

// renderer 按 --width 创建输出渲染器
func renderer(cmd *cobra.Command) *cli.Renderer {
	width, _ := cmd.Flags().GetInt("width")
	return cli.NewRenderer(width)
}

// openStore loads the config and opens the bridge database offline.
func openStore() (*config.Config, *application.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	store, err := application.OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// ─── Bridge Server Mode ───

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
		MaxAge:     cfg.Log.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("Starting NGOBridge",
		zap.String("version", cliVersion),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		_ = app.Stop(context.Background())
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return app.Stop(shutdownCtx)
}
