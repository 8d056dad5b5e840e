package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"labtree/internal/domain"
	"labtree/internal/state"
)

type uiStyles struct {
	headerStyle lipgloss.Style
	mutedStyle  lipgloss.Style
	statusStyle lipgloss.Style
	warnStyle   lipgloss.Style
	cursorStyle lipgloss.Style
	matchStyle  lipgloss.Style
	panelBorder lipgloss.Style
}

func stylesFor(model Model) uiStyles {
	if strings.ToLower(model.state.Prefs.Theme) == "light" {
		return uiStyles{
			headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("235")),
			mutedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
			statusStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("25")).Bold(true),
			warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("124")).Bold(true),
			cursorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("90")).Bold(true),
			matchStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("28")).Bold(true),
			panelBorder: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		}
	}
	return uiStyles{
		headerStyle: lipgloss.NewStyle().Bold(true),
		mutedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		statusStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Bold(true),
		warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true),
		cursorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		matchStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		panelBorder: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

func (model Model) View() string {
	styles := stylesFor(model)
	if model.showHelp {
		return renderHelpView(model, styles)
	}
	if model.viewing {
		return renderViewer(model, styles)
	}

	body := renderBody(model, styles)
	footer := renderFooter(model, styles)
	return strings.Join([]string{body, footer}, "\n")
}

func renderBody(model Model, styles uiStyles) string {
	visible := model.state.VisibleNodes()
	bodyHeight := model.listHeight()
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	leftWidth, rightWidth, showRight := splitPanels(model.width)
	left := renderTreePanel(model, styles, visible, bodyHeight, leftWidth)
	if !showRight {
		return left
	}
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("238")).Render("│")
	right := renderDetailPanel(model, styles, rightWidth, bodyHeight)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, sep, right)
}

func renderFooter(model Model, styles uiStyles) string {
	if model.inputMode != inputNone {
		return strings.Join([]string{
			model.input.View(),
			styles.mutedStyle.Render("enter confirm  esc cancel"),
		}, "\n")
	}
	statusLine := trimStatus(model.status, model.width)
	if model.actionRunning && model.actionStage != "" {
		statusLine = fmt.Sprintf("%s  [%s]", statusLine, model.actionStage)
	}
	statusStyle := styles.mutedStyle
	lower := strings.ToLower(model.status)
	if strings.Contains(lower, "error") || strings.Contains(lower, "rate limited") {
		statusStyle = styles.warnStyle
	}
	statusLine = statusStyle.Render(statusLine)

	left := fmt.Sprintf("Loading: %d%s", pendingCount(model), filterSummary(model))
	keys := "↑/↓ move  enter expand  ← collapse  / search  e ext  x clear  v view  d download  u upload  y copy  R reload  r refresh  ? help  q quit"
	footerLine := padLine(left, keys, model.width)
	return strings.Join([]string{statusLine, styles.mutedStyle.Render(footerLine)}, "\n")
}

func renderTreePanel(model Model, styles uiStyles, visible []state.VisibleNode, height, width int) string {
	if width < 20 {
		width = 20
	}
	contentWidth := maxInt(width-2, 10)
	session := "signed out"
	if model.user.Username != "" {
		session = model.user.Username + "@" + hostLabel(model.state.Host)
	}
	activity := "IDLE"
	switch {
	case model.loggingIn:
		activity = "SIGNING IN"
	case pendingCount(model) > 0:
		activity = "LOADING"
	case model.actionRunning:
		activity = "TRANSFER"
	}
	headerLine := padLine(styles.headerStyle.Render("labtree")+"  "+session, styles.statusStyle.Render(activity), contentWidth)
	listHeight := height - 1
	if listHeight < 1 {
		listHeight = 1
	}
	if len(visible) == 0 {
		message := "Not signed in - press i"
		if model.loggingIn {
			message = "Signing in..."
		}
		lines := []string{headerLine, message}
		for i := 0; i < maxInt(listHeight-1, 0); i++ {
			lines = append(lines, "")
		}
		return styles.panelBorder.Width(contentWidth).Render(strings.Join(lines, "\n"))
	}
	start := clamp(model.viewTop, 0, maxInt(len(visible)-1, 0))
	end := start + listHeight
	if end > len(visible) {
		end = len(visible)
	}

	lines := make([]string, 0, height)
	lines = append(lines, headerLine)
	for index := start; index < end; index++ {
		item := visible[index]
		node := item.Node
		indent := strings.Repeat("  ", item.Depth)
		prefix := fmt.Sprintf("%s%s %s ", indent, expander(model, node), nodeIcon(model, node))
		suffix := stateSuffix(node)
		labelWidth := maxInt(contentWidth-runewidth.StringWidth(prefix)-runewidth.StringWidth(suffix), 4)
		label := runewidth.Truncate(node.Label, labelWidth, "…")
		if item.Match {
			label = styles.matchStyle.Render(label)
		}
		line := prefix + label + suffix
		if index == model.state.Cursor {
			line = styles.cursorStyle.Render(prefix + runewidth.Truncate(node.Label, labelWidth, "…") + suffix)
		} else if node.State() == domain.Failed {
			line = prefix + label + styles.warnStyle.Render(suffix)
		}
		lines = append(lines, line)
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	content := strings.Join(lines, "\n")
	return styles.panelBorder.Width(contentWidth).Render(content)
}

func renderDetailPanel(model Model, styles uiStyles, width, height int) string {
	node := model.state.CurrentNode()
	if node == nil {
		return styles.panelBorder.Width(maxInt(width-2, 10)).Render("No selection")
	}
	contentWidth := maxInt(width-2, 10)
	lines := []string{
		styles.headerStyle.Render("Path"),
		wrapPath(node.PathString(), contentWidth),
		"",
		styles.headerStyle.Render("Kind"),
		node.Kind.String(),
	}
	if node.Kind.Expandable() {
		lines = append(lines, "", styles.headerStyle.Render("State"), node.State().String())
		if node.State() == domain.Resolved {
			lines = append(lines, fmt.Sprintf("Items: %d", node.ChildCount()))
		}
		if node.State() == domain.Failed && node.Err() != nil {
			lines = append(lines, styles.warnStyle.Render(describeError(node.Err())))
		}
	}
	if node.Meta.FullPath != "" {
		lines = append(lines, "", styles.headerStyle.Render("Namespace"), node.Meta.FullPath)
	}
	if node.Meta.Path != "" {
		lines = append(lines, "", styles.headerStyle.Render("File"), node.Meta.Path)
	}
	if ref := model.refFor(node); node.Meta.ProjectID != 0 && ref != "" {
		lines = append(lines, "", styles.headerStyle.Render("Ref"), ref)
	}
	if node.Meta.SHA != "" {
		lines = append(lines, "", styles.headerStyle.Render("Object"), shortSHA(node.Meta.SHA))
	}
	if node.Meta.WebURL != "" {
		lines = append(lines, "", styles.headerStyle.Render("URL"), node.Meta.WebURL)
	}

	content := strings.Join(lines, "\n")
	content = lipgloss.NewStyle().Width(contentWidth).Height(height).Render(content)
	return styles.panelBorder.Width(contentWidth).Render(content)
}

func renderViewer(model Model, styles uiStyles) string {
	header := padLine(styles.headerStyle.Render(model.viewTitle), styles.mutedStyle.Render(fmt.Sprintf("%3.f%%", model.viewer.ScrollPercent()*100)), model.width)
	footer := styles.mutedStyle.Render("↑/↓ scroll  pgup/pgdn page  esc close")
	return strings.Join([]string{header, model.viewer.View(), footer}, "\n")
}

func renderHelpView(model Model, styles uiStyles) string {
	bindings := []key.Binding{
		model.keys.Up,
		model.keys.Down,
		model.keys.PageUp,
		model.keys.PageDown,
		model.keys.Expand,
		model.keys.Collapse,
		model.keys.Search,
		model.keys.ExtFilter,
		model.keys.ClearFilter,
		model.keys.Reload,
		model.keys.Refresh,
		model.keys.View,
		model.keys.Download,
		model.keys.Upload,
		model.keys.Yank,
		model.keys.NewGroup,
		model.keys.NewProject,
		model.keys.Login,
		model.keys.Logout,
		model.keys.Help,
		model.keys.Quit,
	}

	lines := []string{styles.headerStyle.Render("labtree Help"), ""}
	lines = append(lines, styles.headerStyle.Render("Navigation"))
	lines = append(lines, "↑/↓ move cursor", "enter open a group, project or directory", "← close, or jump to parent")
	lines = append(lines, "", styles.headerStyle.Render("Loading"))
	lines = append(lines, "rows load the first time they are opened", "R reload the current row", "r drop the cache and start over")
	lines = append(lines, "", styles.headerStyle.Render("Files"))
	lines = append(lines, "v view", "d download to a local path", "u upload a local file and commit it")
	lines = append(lines, "", styles.headerStyle.Render("Search"))
	lines = append(lines, "/ search loaded rows", "e extension filter", "x clear")
	lines = append(lines, "", styles.headerStyle.Render("Keys"))
	for _, binding := range bindings {
		keysLabel := strings.Join(binding.Keys(), ", ")
		lines = append(lines, fmt.Sprintf("%-22s %s", keysLabel, binding.Help().Desc))
	}
	lines = append(lines, "", "Press ? to close help")
	content := strings.Join(lines, "\n")
	width := model.width
	if width <= 0 {
		width = 80
	}
	return styles.panelBorder.Width(maxInt(width-2, 10)).Render(content)
}

func pendingCount(model Model) int {
	if model.explorer == nil {
		return 0
	}
	return model.explorer.Pending()
}

func hostLabel(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

func expander(model Model, node *domain.Node) string {
	if !node.Kind.Expandable() {
		return " "
	}
	if model.state.IsExpanded(node.ID) {
		return "▾"
	}
	return "▸"
}

func nodeIcon(model Model, node *domain.Node) string {
	switch node.Kind {
	case domain.KindCollection:
		return "🏠"
	case domain.KindGroup, domain.KindSubgroup:
		return "👥"
	case domain.KindProject:
		return "📦"
	case domain.KindDirectory:
		if model.state.IsExpanded(node.ID) {
			return "📂"
		}
		return "📁"
	default:
		return "📄"
	}
}

func stateSuffix(node *domain.Node) string {
	switch node.State() {
	case domain.Resolving:
		return " …"
	case domain.Failed:
		return " ✗"
	default:
		return ""
	}
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func wrapPath(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	return runewidth.Truncate(value, width, "…")
}

func formatSize(size int64) string {
	const unit = 1000
	if size < unit {
		return fmt.Sprintf("%dB", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit && exp < 5; n /= unit {
		div *= unit
		exp++
	}
	value := float64(size) / float64(div)
	units := []string{"KB", "MB", "GB", "TB", "PB", "EB"}
	return fmt.Sprintf("%.1f%s", value, units[exp])
}

func padLine(left, right string, width int) string {
	if width <= 0 {
		return left
	}
	space := width - lipgloss.Width(left) - lipgloss.Width(right)
	if space < 1 {
		return left + " " + right
	}
	return left + strings.Repeat(" ", space) + right
}

func splitPanels(width int) (int, int, bool) {
	if width < 80 {
		return width, 0, false
	}
	left := int(float64(width) * 0.6)
	if left < 40 {
		left = 40
	}
	right := width - left - 1
	if right < 30 {
		return width, 0, false
	}
	return left, right, true
}

func trimStatus(message string, width int) string {
	if width <= 0 {
		return message
	}
	max := width - 4
	if max <= 0 || runewidth.StringWidth(message) <= max {
		return message
	}
	return runewidth.Truncate(message, max, "...")
}

func filterSummary(model Model) string {
	parts := []string{}
	if model.state.SearchQuery != "" {
		parts = append(parts, fmt.Sprintf("Search:%s (%d)", model.state.SearchQuery, model.state.MatchCount()))
	}
	if model.state.FilterExt != "" {
		parts = append(parts, fmt.Sprintf("Ext:%s", model.state.FilterExt))
	}
	if len(parts) == 0 {
		return ""
	}
	return "  Filters[" + strings.Join(parts, ", ") + "]"
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
