package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/eventbus"
)

func logCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "查询消息关联日志",
	}

	show := &cobra.Command{
		Use:   "show <master_chat.message_id>",
		Short: "显示一条关联记录",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Log.GetByMaster(context.Background(), entity.MasterMessageUID(args[0]))
			if err != nil {
				return err
			}
			fmt.Println(renderer(cmd).RenderRecord(rec))
			return nil
		},
	}

	recent := &cobra.Command{
		Use:   "recent <master_chat>",
		Short: "主会话最近往来的从会话",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			master := entity.MasterChatUID(args[0])
			chats, err := store.Log.RecentSlaveChats(context.Background(), master, limit)
			if err != nil {
				return err
			}
			fmt.Println(renderer(cmd).RenderRecentChats(master, chats))
			return nil
		},
	}
	recent.Flags().IntP("limit", "n", 5, "最多显示条数")

	cmd.AddCommand(show, recent)
	return cmd
}

func eventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "显示事件日志 (~/.ngobridge/logs/events.jsonl)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				path = filepath.Join(config.HomeDir(), "logs", eventbus.JournalFile)
			}
			limit, _ := cmd.Flags().GetInt("limit")

			records, err := eventbus.ReadJournal(path, limit)
			if err != nil {
				return err
			}
			fmt.Println(renderer(cmd).RenderEvents(records))
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 50, "最多显示条数, 0 为全部")
	cmd.Flags().String("file", "", "事件日志路径")
	return cmd
}

func configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "输出当前生效的转发开关 (YAML)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			out, err := yaml.Marshal(map[string]config.RelayConfig{"relay": cfg.Relay})
			if err != nil {
				return err
			}
			source := cfg.File
			if source == "" {
				source = "defaults"
			}
			fmt.Printf("# source: %s\n%s", source, out)
			return nil
		},
	}
}
