package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/eventbus"
)

// maxCell 单元格最大显示宽度
const maxCell = 60

// Check 诊断项结果
type Check struct {
	Name   string
	Detail string
	OK     bool
}

// Renderer handles all bridgectl output: tables, records, events, checks
type Renderer struct {
	width int
}

// NewRenderer creates a renderer with the given terminal width
func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	return &Renderer{width: width}
}

// Width 终端宽度
func (r *Renderer) Width() int {
	return r.width
}

func newTable(headers ...string) *table.Table {
	headerStyle := lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Foreground(colorWhite).Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// RenderLinks renders chat links; labels maps slave chats to display names.
func (r *Renderer) RenderLinks(links []entity.ChatLink, labels map[entity.SlaveChatUID]string) string {
	if len(links) == 0 {
		return r.RenderNotice("No links.")
	}
	t := newTable("MASTER", "SLAVE", "CHAT", "SINCE")
	for _, l := range links {
		label := labels[l.Slave]
		if label == "" {
			label = "-"
		}
		t.Row(string(l.Master), string(l.Slave), truncate(label, maxCell), formatTime(l.CreatedAt))
	}
	return t.Render()
}

// RenderChats renders the cached chats of one slave channel.
func (r *Renderer) RenderChats(chats []*entity.ChatInfo) string {
	if len(chats) == 0 {
		return r.RenderNotice("No cached chats.")
	}
	t := newTable("UID", "NAME", "TYPE", "UPDATED")
	for _, c := range chats {
		name := c.Name
		if c.Alias != "" {
			name = fmt.Sprintf("%s (%s)", c.Alias, c.Name)
		}
		t.Row(string(c.SlaveUID()), truncate(name, maxCell), string(c.Type), formatTime(c.UpdatedAt))
	}
	return t.Render()
}

// RenderRecord renders one correlation log entry as a key/value box.
func (r *Renderer) RenderRecord(rec *entity.MessageRecord) string {
	if rec == nil {
		return r.RenderNotice("Record not found.")
	}

	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorDimCyan).
		Padding(0, 1)

	slaveID := rec.SlaveMessageID
	if rec.IsPending() {
		slaveID = lipgloss.NewStyle().Foreground(colorYellow).Render(slaveID + " (not delivered)")
	}

	fields := []struct {
		label string
		value string
	}{
		{"master", string(rec.MasterMsgID)},
		{"master alt", string(rec.MasterMsgIDAlt)},
		{"slave msg", slaveID},
		{"origin", string(rec.SlaveOriginUID)},
		{"origin name", rec.SlaveOriginDisplayName},
		{"member", memberLabel(rec)},
		{"type", string(rec.MessageType)},
		{"direction", string(rec.Direction)},
		{"text", truncate(rec.Text, maxCell)},
		{"media", strings.TrimSpace(rec.MediaType + " " + rec.MIME)},
		{"file", rec.FileID},
		{"snapshot", snapshotLabel(rec.Snapshot)},
		{"created", formatTime(rec.CreatedAt)},
	}

	var b strings.Builder
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", f.label)), valueStyle.Render(f.value))
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderRecentChats renders the slave chats a master chat talked to, newest first.
func (r *Renderer) RenderRecentChats(master entity.MasterChatUID, chats []entity.SlaveChatUID) string {
	if len(chats) == 0 {
		return r.RenderNotice(fmt.Sprintf("No recent slave chats for %s.", master))
	}
	t := newTable("#", "SLAVE")
	for i, c := range chats {
		t.Row(fmt.Sprintf("%d", i+1), string(c))
	}
	return t.Render()
}

// RenderEvents renders journal records, one line each.
func (r *Renderer) RenderEvents(records []eventbus.Record) string {
	if len(records) == 0 {
		return r.RenderNotice("No events.")
	}

	tsStyle := lipgloss.NewStyle().Foreground(colorGray)
	okStyle := lipgloss.NewStyle().Foreground(colorGreen)
	failStyle := lipgloss.NewStyle().Foreground(colorRed)
	typeStyle := lipgloss.NewStyle().Foreground(colorCyan)

	var b strings.Builder
	for _, rec := range records {
		style := typeStyle
		switch rec.Type {
		case eventbus.EventRelayFailed, eventbus.EventSlaveDisconnected:
			style = failStyle
		case eventbus.EventRelayed, eventbus.EventSlaveConnected:
			style = okStyle
		}
		fmt.Fprintf(&b, "%s %s %s\n",
			tsStyle.Render(rec.Timestamp.Local().Format("2006-01-02 15:04:05")),
			style.Render(fmt.Sprintf("%-18s", rec.Type)),
			truncate(payloadSummary(rec.Payload), r.width-40),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderChecks renders doctor results and reports whether all passed.
func (r *Renderer) RenderChecks(checks []Check) (string, bool) {
	okIcon := lipgloss.NewStyle().Foreground(colorGreen).Render("✓")
	failIcon := lipgloss.NewStyle().Foreground(colorRed).Render("✗")
	nameStyle := lipgloss.NewStyle().Foreground(colorWhite)
	detailStyle := lipgloss.NewStyle().Foreground(colorGray)

	allOK := true
	var b strings.Builder
	for _, c := range checks {
		icon := okIcon
		if !c.OK {
			icon = failIcon
			allOK = false
		}
		fmt.Fprintf(&b, "  %s %s: %s\n", icon, nameStyle.Render(c.Name), detailStyle.Render(c.Detail))
	}
	return strings.TrimRight(b.String(), "\n"), allOK
}

// RenderNotice renders a dim one-line message
func (r *Renderer) RenderNotice(text string) string {
	return lipgloss.NewStyle().Foreground(colorDim).Render(text)
}

// RenderError renders an error line
func (r *Renderer) RenderError(err error) string {
	return lipgloss.NewStyle().Foreground(colorRed).Bold(true).Render("✗ " + err.Error())
}

func memberLabel(rec *entity.MessageRecord) string {
	switch {
	case rec.SlaveMemberDisplayName != "" && rec.SlaveMemberUID != "":
		return fmt.Sprintf("%s (%s)", rec.SlaveMemberDisplayName, rec.SlaveMemberUID)
	case rec.SlaveMemberUID != "":
		return rec.SlaveMemberUID
	default:
		return rec.SlaveMemberDisplayName
	}
}

func snapshotLabel(snapshot []byte) string {
	if len(snapshot) == 0 {
		return ""
	}
	return fmt.Sprintf("%d bytes", len(snapshot))
}

// payloadSummary renders a payload as compact JSON
func payloadSummary(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

func truncate(s string, max int) string {
	if max < 8 {
		max = 8
	}
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
