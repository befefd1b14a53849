package cli

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// brand colors
var (
	colorCyan    = lipgloss.Color("#00D7FF")
	colorDimCyan = lipgloss.Color("#00AFAF")
	colorGray    = lipgloss.Color("#6C6C6C")
	colorWhite   = lipgloss.Color("#FFFFFF")
	colorDim     = lipgloss.Color("#4E4E4E")
	colorGreen   = lipgloss.Color("#00FF87")
	colorYellow  = lipgloss.Color("#FFD75F")
	colorRed     = lipgloss.Color("#FF5F5F")
)

// Logo lines, block font without box-drawing corners
var logoLines = []string{
	" ██████  ██████  ██ ██████   ██████  ███████",
	" ██   ██ ██   ██ ██ ██   ██ ██       ██     ",
	" ██████  ██████  ██ ██   ██ ██   ███ █████  ",
	" ██   ██ ██   ██ ██ ██   ██ ██    ██ ██     ",
	" ██████  ██   ██ ██ ██████   ██████  ███████",
}

// Gradient colors top→bottom (cyan → blue → violet)
var logoGradient = []lipgloss.Color{
	lipgloss.Color("#00FFFF"),
	lipgloss.Color("#00CFFF"),
	lipgloss.Color("#009FFF"),
	lipgloss.Color("#006FFF"),
	lipgloss.Color("#5F5FFF"),
}

// BannerInfo carries the stats shown by `bridgectl status`
type BannerInfo struct {
	Version  string
	Config   string
	Database string
	Links    int
	// Slaves 在线从通道, 桥接未运行时为 nil
	Slaves []string
	Admin  string
}

// RenderBanner returns the styled status banner with gradient logo
func RenderBanner(info BannerInfo, width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)
	greenStyle := lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle := lipgloss.NewStyle().Foreground(colorYellow)
	versionStyle := lipgloss.NewStyle().Foreground(colorDimCyan)

	var logo strings.Builder
	if width >= len([]rune(logoLines[0])) {
		for i, line := range logoLines {
			c := logoGradient[i%len(logoGradient)]
			logo.WriteString(lipgloss.NewStyle().Foreground(c).Bold(true).Render(line) + "\n")
		}
	} else {
		// Compact fallback
		logo.WriteString(lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Render(" ◇  N G O B R I D G E") + "\n")
	}

	ver := versionStyle.Render(fmt.Sprintf("  v%s", info.Version))

	line := func(label, value string) string {
		return fmt.Sprintf("  %s %s", labelStyle.Render(fmt.Sprintf("%-8s", label)), value)
	}

	config := info.Config
	if config == "" {
		config = "(defaults)"
	}

	slaves := warnStyle.Render("bridge not reachable")
	if info.Slaves != nil {
		if len(info.Slaves) == 0 {
			slaves = warnStyle.Render("none connected")
		} else {
			slaves = greenStyle.Render(strings.Join(info.Slaves, ", "))
		}
	}

	lines := []string{
		line("Config", valueStyle.Render(config)),
		line("Database", valueStyle.Render(info.Database)),
		line("Links", greenStyle.Render(fmt.Sprintf("%d", info.Links))),
		line("Slaves", slaves),
		line("Admin", valueStyle.Render(info.Admin)),
		line("Env", labelStyle.Render(runtime.GOOS+"/"+runtime.GOARCH)),
	}

	return fmt.Sprintf("\n%s%s\n\n%s\n", logo.String(), ver, strings.Join(lines, "\n"))
}
