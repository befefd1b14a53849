package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngoclaw/ngoclaw/bridge/internal/application"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/bridge/internal/interfaces/cli"
)

// adminTimeout 访问运行中桥接的超时
const adminTimeout = 3 * time.Second

func adminAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
}

// getAdmin calls the running bridge's admin API and decodes the JSON body.
func getAdmin(cfg *config.Config, path string, out any) error {
	if !cfg.HTTP.Enabled {
		return fmt.Errorf("admin API disabled")
	}
	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+adminAddr(cfg)+path, nil)
	if err != nil {
		return err
	}
	if cfg.HTTP.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.HTTP.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// connectedSlaves 运行中桥接的从通道, 不可达时返回 nil
func connectedSlaves(cfg *config.Config) []string {
	var body struct {
		Slaves []struct {
			ID string `json:"id"`
		} `json:"slaves"`
	}
	if err := getAdmin(cfg, "/api/v1/slaves", &body); err != nil {
		return nil
	}
	ids := make([]string, 0, len(body.Slaves))
	for _, s := range body.Slaves {
		ids = append(ids, s.ID)
	}
	return ids
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	links, err := store.Links.All(context.Background())
	if err != nil {
		return err
	}

	r := renderer(cmd)
	fmt.Println(cli.RenderBanner(cli.BannerInfo{
		Version:  cliVersion,
		Config:   cfg.File,
		Database: cfg.Database.Type + " " + cfg.Database.DSN,
		Links:    len(links),
		Slaves:   connectedSlaves(cfg),
		Admin:    adminAddr(cfg),
	}, r.Width()))
	return nil
}

// ─── Doctor ───

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("◇ NGOBridge Doctor v%s\n\n", cliVersion)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	checks := []cli.Check{
		checkConfig(cfg),
		checkBotToken(cfg),
		checkAdmins(cfg),
		checkDatabase(cfg),
		checkSlaveTokens(cfg),
		checkAdminAPI(cfg),
	}

	out, allOK := renderer(cmd).RenderChecks(checks)
	fmt.Println(out)
	fmt.Println()
	if allOK {
		fmt.Println("所有检查通过 ✓")
	} else {
		fmt.Println("存在问题, 请检查上方标记")
	}
	return nil
}

func checkConfig(cfg *config.Config) cli.Check {
	if cfg.File == "" {
		return cli.Check{Name: "配置文件", Detail: "未找到, 使用默认值 (首次 serve 会生成 ~/.ngobridge/config.yaml)"}
	}
	if _, err := os.Stat(cfg.File); err != nil {
		return cli.Check{Name: "配置文件", Detail: err.Error()}
	}
	return cli.Check{Name: "配置文件", Detail: cfg.File, OK: true}
}

func checkBotToken(cfg *config.Config) cli.Check {
	if cfg.Telegram.BotToken == "" {
		return cli.Check{Name: "Telegram bot", Detail: "telegram.bot_token 未设置"}
	}
	return cli.Check{Name: "Telegram bot", Detail: "已配置", OK: true}
}

func checkAdmins(cfg *config.Config) cli.Check {
	if len(cfg.Telegram.Admins) == 0 {
		return cli.Check{Name: "管理员", Detail: "telegram.admins 为空, 所有消息将被忽略"}
	}
	return cli.Check{Name: "管理员", Detail: fmt.Sprintf("%d 个, 回退会话 %s", len(cfg.Telegram.Admins), cfg.Relay.FallbackChat), OK: true}
}

func checkDatabase(cfg *config.Config) cli.Check {
	store, err := application.OpenStore(cfg)
	if err != nil {
		return cli.Check{Name: "数据库", Detail: err.Error()}
	}
	defer store.Close()

	links, err := store.Links.All(context.Background())
	if err != nil {
		return cli.Check{Name: "数据库", Detail: err.Error()}
	}
	return cli.Check{Name: "数据库", Detail: fmt.Sprintf("%s, %d 个绑定", cfg.Database.Type, len(links)), OK: true}
}

func checkSlaveTokens(cfg *config.Config) cli.Check {
	for id, token := range cfg.Slaves.Tokens {
		if strings.Contains(id, ".") {
			return cli.Check{Name: "从通道令牌", Detail: fmt.Sprintf("通道 ID %q 不能包含 \".\"", id)}
		}
		if token == "" {
			return cli.Check{Name: "从通道令牌", Detail: fmt.Sprintf("%s 的令牌为空", id)}
		}
	}
	return cli.Check{Name: "从通道令牌", Detail: fmt.Sprintf("%d 个远程通道", len(cfg.Slaves.Tokens)), OK: true}
}

func checkAdminAPI(cfg *config.Config) cli.Check {
	if !cfg.HTTP.Enabled {
		return cli.Check{Name: "管理接口", Detail: "已禁用", OK: true}
	}
	if err := getAdmin(cfg, "/health", nil); err != nil {
		return cli.Check{Name: "管理接口", Detail: fmt.Sprintf("%s 不可达: %v", adminAddr(cfg), err)}
	}
	return cli.Check{Name: "管理接口", Detail: adminAddr(cfg), OK: true}
}
