package cli

import "github.com/charmbracelet/lipgloss"

// Theme defines the color roles used in terminal output.
type Theme struct {
	Name      string
	Border    lipgloss.Color
	TextDim   lipgloss.Color
	TextMuted lipgloss.Color
	Text      lipgloss.Color
	Accent    lipgloss.Color
	Green     lipgloss.Color
	Yellow    lipgloss.Color
	Orange    lipgloss.Color
	Red       lipgloss.Color
	Blue      lipgloss.Color
}

// FlexokiDark is the default theme.
var FlexokiDark = Theme{
	Name:      "flexoki-dark",
	Border:    lipgloss.Color("#282726"),
	TextDim:   lipgloss.Color("#575653"),
	TextMuted: lipgloss.Color("#878580"),
	Text:      lipgloss.Color("#FFFCF0"),
	Accent:    lipgloss.Color("#3AA99F"),
	Green:     lipgloss.Color("#879A39"),
	Yellow:    lipgloss.Color("#D0A215"),
	Orange:    lipgloss.Color("#DA702C"),
	Red:       lipgloss.Color("#D14D41"),
	Blue:      lipgloss.Color("#4385BE"),
}

// CatppuccinMocha is a pastel theme.
var CatppuccinMocha = Theme{
	Name:      "catppuccin-mocha",
	Border:    lipgloss.Color("#585B70"),
	TextDim:   lipgloss.Color("#6C7086"),
	TextMuted: lipgloss.Color("#A6ADC8"),
	Text:      lipgloss.Color("#CDD6F4"),
	Accent:    lipgloss.Color("#89B4FA"),
	Green:     lipgloss.Color("#A6E3A1"),
	Yellow:    lipgloss.Color("#F9E2AF"),
	Orange:    lipgloss.Color("#FAB387"),
	Red:       lipgloss.Color("#F38BA8"),
	Blue:      lipgloss.Color("#89B4FA"),
}

// TokyoNight is a cool blue theme.
var TokyoNight = Theme{
	Name:      "tokyo-night",
	Border:    lipgloss.Color("#565F89"),
	TextDim:   lipgloss.Color("#565F89"),
	TextMuted: lipgloss.Color("#A9B1D6"),
	Text:      lipgloss.Color("#C0CAF5"),
	Accent:    lipgloss.Color("#7AA2F7"),
	Green:     lipgloss.Color("#9ECE6A"),
	Yellow:    lipgloss.Color("#E0AF68"),
	Orange:    lipgloss.Color("#FF9E64"),
	Red:       lipgloss.Color("#F7768E"),
	Blue:      lipgloss.Color("#7AA2F7"),
}

// Terminal uses ANSI 16 colors only.
var Terminal = Theme{
	Name:      "terminal",
	Border:    lipgloss.Color("8"),
	TextDim:   lipgloss.Color("8"),
	TextMuted: lipgloss.Color("7"),
	Text:      lipgloss.Color("15"),
	Accent:    lipgloss.Color("6"),
	Green:     lipgloss.Color("2"),
	Yellow:    lipgloss.Color("3"),
	Orange:    lipgloss.Color("3"),
	Red:       lipgloss.Color("1"),
	Blue:      lipgloss.Color("4"),
}

// Themes lists the available themes.
var Themes = []Theme{FlexokiDark, CatppuccinMocha, TokyoNight, Terminal}

// ThemeNames returns the names of all themes.
func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}

// ThemeByName returns a theme by name, defaulting to FlexokiDark.
func ThemeByName(name string) (Theme, bool) {
	for _, t := range Themes {
		if t.Name == name {
			return t, true
		}
	}
	return FlexokiDark, false
}

// Active is the theme used by the render functions.
var Active = FlexokiDark

// SetTheme selects the active theme by name and rebuilds the styles.
// Unknown names fall back to FlexokiDark.
func SetTheme(name string) {
	Active, _ = ThemeByName(name)
	buildStyles()
}

var (
	titleStyle  lipgloss.Style
	headerStyle lipgloss.Style
	valueStyle  lipgloss.Style
	mutedStyle  lipgloss.Style
	dimStyle    lipgloss.Style
	borderStyle lipgloss.Style
	okStyle     lipgloss.Style
	warnStyle   lipgloss.Style
	errStyle    lipgloss.Style
	amountStyle lipgloss.Style
)

func init() { buildStyles() }

func buildStyles() {
	t := Active
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(t.Text).Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	valueStyle = lipgloss.NewStyle().Foreground(t.Text)
	mutedStyle = lipgloss.NewStyle().Foreground(t.TextMuted)
	dimStyle = lipgloss.NewStyle().Foreground(t.TextDim)
	borderStyle = lipgloss.NewStyle().Foreground(t.Border)
	okStyle = lipgloss.NewStyle().Foreground(t.Green)
	warnStyle = lipgloss.NewStyle().Foreground(t.Orange)
	errStyle = lipgloss.NewStyle().Foreground(t.Red).Bold(true)
	amountStyle = lipgloss.NewStyle().Foreground(t.Blue)
}
