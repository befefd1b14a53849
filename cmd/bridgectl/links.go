package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

func linksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "查看与编辑会话绑定",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "列出绑定",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			links, err := store.Links.All(ctx)
			if err != nil {
				return err
			}
			if master, _ := cmd.Flags().GetString("master"); master != "" {
				filtered := links[:0]
				for _, l := range links {
					if l.Master == entity.MasterChatUID(master) {
						filtered = append(filtered, l)
					}
				}
				links = filtered
			}

			labels := make(map[entity.SlaveChatUID]string, len(links))
			for _, l := range links {
				channelID, chatID, err := l.Slave.Split()
				if err != nil {
					continue
				}
				if info, err := store.Chats.Get(ctx, channelID, chatID); err == nil && info != nil {
					labels[l.Slave] = info.Apply(entity.Chat{UID: chatID}).LongName()
				}
			}
			fmt.Println(renderer(cmd).RenderLinks(links, labels))
			return nil
		},
	}
	list.Flags().String("master", "", "只显示该主会话")

	add := &cobra.Command{
		Use:   "add <master_chat> <channel.chat>",
		Short: "绑定主会话与从会话",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			multiple := cfg.Relay.MultipleSlaveChats
			if cmd.Flags().Changed("multiple") {
				multiple, _ = cmd.Flags().GetBool("multiple")
			}
			master, slave := entity.MasterChatUID(args[0]), entity.SlaveChatUID(args[1])
			if err := store.Link(context.Background(), master, slave, multiple); err != nil {
				return err
			}
			fmt.Println(renderer(cmd).RenderNotice(fmt.Sprintf("Linked %s → %s", master, slave)))
			return nil
		},
	}
	add.Flags().Bool("multiple", false, "保留主会话已有绑定 (默认取 relay.multiple_slave_chats)")

	remove := &cobra.Command{
		Use:   "remove <master_chat> [channel.chat]",
		Short: "解除绑定",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var slave entity.SlaveChatUID
			if len(args) == 2 {
				slave = entity.SlaveChatUID(args[1])
			}
			n, err := store.Unlink(context.Background(), entity.MasterChatUID(args[0]), slave)
			if err != nil {
				return err
			}
			fmt.Println(renderer(cmd).RenderNotice(fmt.Sprintf("Removed %d link(s)", n)))
			return nil
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func chatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chats <channel>",
		Short: "列出从通道的已缓存会话",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			chats, err := store.Chats.ListByChannel(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(renderer(cmd).RenderChats(chats))
			return nil
		},
	}
}
