package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// Command Telegram 命令
type Command struct {
	Name      string   // 命令名 (不含 /)
	Args      []string // 参数列表
	RawArgs   string   // 原始参数字符串
	ChatID    int64
	UserID    int64
	MessageID int
	// ReplyTo 被回复的消息, 0 表示无
	ReplyTo int
}

// CommandHandler returns the text to reply with; an empty reply sends nothing.
type CommandHandler func(ctx context.Context, cmd *Command) (string, error)

type commandEntry struct {
	description string
	handler     CommandHandler
}

// CommandRegistry 命令注册表
type CommandRegistry struct {
	mu       sync.RWMutex
	handlers map[string]commandEntry
	aliases  map[string]string
}

// NewCommandRegistry 创建命令注册表
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		handlers: make(map[string]commandEntry),
		aliases:  make(map[string]string),
	}
}

// Register 注册命令
func (r *CommandRegistry) Register(name, description string, handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(name)] = commandEntry{description: description, handler: handler}
}

// Alias 注册别名
func (r *CommandRegistry) Alias(alias, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(alias)] = strings.ToLower(target)
}

// Handle 处理命令
func (r *CommandRegistry) Handle(ctx context.Context, cmd *Command) (string, bool, error) {
	r.mu.RLock()
	name := strings.ToLower(cmd.Name)
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	entry, exists := r.handlers[name]
	r.mu.RUnlock()

	if !exists {
		return "", false, nil
	}
	reply, err := entry.handler(ctx, cmd)
	return reply, true, err
}

// Menu returns the registered commands sorted by name for setMyCommands.
func (r *CommandRegistry) Menu() []tgbotapi.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	menu := make([]tgbotapi.BotCommand, 0, len(r.handlers))
	for name, entry := range r.handlers {
		menu = append(menu, tgbotapi.BotCommand{Command: name, Description: entry.description})
	}
	sort.Slice(menu, func(i, j int) bool { return menu[i].Command < menu[j].Command })
	return menu
}

// ParseCommand 解析命令
func ParseCommand(text string) *Command {
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	// 移除 @ 后缀 (群组中的 /cmd@botname)
	parts := strings.SplitN(text[1:], " ", 2)
	cmdPart := parts[0]
	if idx := strings.Index(cmdPart, "@"); idx != -1 {
		cmdPart = cmdPart[:idx]
	}
	if cmdPart == "" {
		return nil
	}

	cmd := &Command{Name: cmdPart}
	if len(parts) > 1 {
		cmd.RawArgs = strings.TrimSpace(parts[1])
		cmd.Args = strings.Fields(parts[1])
	}
	return cmd
}

// LinkService 绑定管理 (usecase.LinkManager)
type LinkService interface {
	Link(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (*usecase.LinkView, error)
	Unlink(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (int64, error)
	Links(ctx context.Context, master entity.MasterChatUID) ([]usecase.LinkView, error)
}

// RegisterBridgeCommands registers the link management commands and /help.
// /rm and /react go through the relay queue and the pickers send keyboards,
// so the adapter handles those itself.
func RegisterBridgeCommands(registry *CommandRegistry, links LinkService) {
	registry.Register("link", "Link this chat to a remote chat: /link [<channel>.<chat>]", func(ctx context.Context, cmd *Command) (string, error) {
		if len(cmd.Args) != 1 {
			return "Usage: /link <channel>.<chat>", nil
		}
		view, err := links.Link(ctx, masterChatUID(cmd.ChatID), entity.SlaveChatUID(cmd.Args[0]))
		if err != nil {
			return "", err
		}
		return "Linked to " + view.Label + ".", nil
	})

	registry.Register("unlink", "Unlink remote chats: /unlink [<channel>.<chat>]", func(ctx context.Context, cmd *Command) (string, error) {
		var slave entity.SlaveChatUID
		if len(cmd.Args) > 0 {
			slave = entity.SlaveChatUID(cmd.Args[0])
		}
		n, err := links.Unlink(ctx, masterChatUID(cmd.ChatID), slave)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "This chat is not linked to any remote chat.", nil
		}
		return fmt.Sprintf("Unlinked %d remote chat(s).", n), nil
	})

	registry.Register("unlink_all", "Unlink every remote chat from this chat", func(ctx context.Context, cmd *Command) (string, error) {
		n, err := links.Unlink(ctx, masterChatUID(cmd.ChatID), "")
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "No remote chat is linked to this chat.", nil
		}
		return fmt.Sprintf("All %d remote chat(s) have been unlinked from this chat.", n), nil
	})

	registry.Register("info", "Show the id and links of this chat", func(ctx context.Context, cmd *Command) (string, error) {
		views, err := links.Links(ctx, masterChatUID(cmd.ChatID))
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Chat ID: %d", cmd.ChatID)
		if len(views) == 0 {
			sb.WriteString("\nThis chat is not linked to any remote chat.")
			return sb.String(), nil
		}
		fmt.Fprintf(&sb, "\nLinked to %d remote chat(s):", len(views))
		for _, v := range views {
			fmt.Fprintf(&sb, "\n- %s [%s]", v.Label, v.Slave)
		}
		return sb.String(), nil
	})

	registry.Register("links", "List remote chats linked here", func(ctx context.Context, cmd *Command) (string, error) {
		views, err := links.Links(ctx, masterChatUID(cmd.ChatID))
		if err != nil {
			return "", err
		}
		if len(views) == 0 {
			return "This chat is not linked to any remote chat.", nil
		}
		var sb strings.Builder
		sb.WriteString("Linked remote chats:")
		for i, v := range views {
			fmt.Fprintf(&sb, "\n%d. %s [%s]", i+1, v.Label, v.Slave)
		}
		return sb.String(), nil
	})

	registry.Register("help", "Show bridge commands", func(ctx context.Context, cmd *Command) (string, error) {
		var sb strings.Builder
		sb.WriteString("Reply to a message to answer in its remote chat.\n\n")
		sb.WriteString("/rm - reply to a message to remove it from its remote chat")
		sb.WriteString("\n/react - reply to a message to react to it, or to list its reactions")
		sb.WriteString("\n/chat - pick a remote chat to talk to")
		for _, c := range registry.Menu() {
			sb.WriteString("\n/" + c.Command + " - " + c.Description)
		}
		return sb.String(), nil
	})
	registry.Alias("start", "help")
}
