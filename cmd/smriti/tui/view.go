package tuicmder

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/transcript"
	"github.com/localmind/smriti/pkg/utils"
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	accentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("215"))
	dividerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("235")).Background(lipgloss.Color("214")).Bold(true)
	openStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	failStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	userPromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	roleUserStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	roleAsstStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

const (
	minListWidth = 20
	maxListWidth = 36
)

func (m tuiModel) View() string {
	if m.width == 0 {
		return mutedStyle.Render("loading...")
	}

	bodyHeight := m.viewport.Height + 2
	listWidth := listColumnWidth(m.width)

	list := padLines(m.viewList(listWidth, bodyHeight), listWidth, bodyHeight)
	rule := make([]string, bodyHeight)
	for i := range rule {
		rule[i] = dividerStyle.Render("│")
	}

	right := []string{m.viewHeader(), m.viewport.View(), m.input.View()}
	rightLines := strings.Split(strings.Join(right, "\n"), "\n")

	body := joinColumns(joinColumns(list, rule, 1), rightLines, 1)
	return strings.Join(body, "\n") + "\n" + m.viewFooter()
}

func (m tuiModel) viewList(width, height int) []string {
	lines := []string{titleStyle.Render(padRight("Chats", width))}
	if len(m.entries) == 0 {
		return append(lines, mutedStyle.Render("no chats yet"))
	}

	start, end := visibleRange(len(m.entries), m.cursor, height-1)
	for i := start; i < end; i++ {
		e := m.entries[i]

		marker := "  "
		if _, streaming := m.manager.Active(e.Key); streaming {
			marker = accentStyle.Render("● ")
		}

		title := utils.Truncate(entryTitle(e), width-5)
		line := padRight(marker+title, width)
		switch {
		case i == m.cursor && m.focus == focusList:
			line = highlightStyle.Render(padRight(marker+title, width))
		case e.Key == m.selected:
			line = openStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lines
}

func (m tuiModel) viewHeader() string {
	if m.selected == "" {
		return titleStyle.Render("New chat") + "  " + mutedStyle.Render(m.modelName)
	}

	c, _ := m.manager.Store().Get(m.selected)
	header := titleStyle.Render(utils.Truncate(c.Title, max(m.viewport.Width-24, 8)))

	if h, ok := m.manager.Active(m.selected); ok {
		state := "streaming"
		if n := h.Attempts(); n > 1 {
			state = fmt.Sprintf("retrying, attempt %d", n)
		}
		header += "  " + accentStyle.Render(state)
	} else if !transcript.IsLocalKey(m.selected) {
		header += "  " + mutedStyle.Render(m.selected)
	}
	return header
}

func (m tuiModel) viewFooter() string {
	status := ""
	if m.status != "" {
		status = accentStyle.Render(m.status)
	}
	return status + "\n" + m.help.View(m.keys)
}

// entryTitle names a chat in the list: its title, or its opening message
// for chats the backend has not titled yet.
func entryTitle(e transcript.Entry) string {
	if e.Chat.Title != "" && e.Chat.Title != "New Chat" {
		return e.Chat.Title
	}
	if opening, ok := e.Chat.Opening(); ok {
		return utils.FirstLine(opening.Content)
	}
	return "New Chat"
}

func renderChat(c chat.Chat, width int) string {
	var b strings.Builder
	for i, msg := range c.Messages {
		if i > 0 {
			b.WriteString("\n")
		}

		b.WriteString(roleLabel(msg.Role))
		if !msg.Timestamp.IsZero() {
			b.WriteString(" " + mutedStyle.Render(msg.Timestamp.Local().Format("15:04")))
		}
		b.WriteString("\n")

		content := msg.Content
		if content == "" && msg.Status == chat.StatusStreaming {
			content = "..."
		}
		for _, line := range wrapText(content, width) {
			b.WriteString(line + "\n")
		}

		switch msg.Status {
		case chat.StatusStreaming:
			b.WriteString(accentStyle.Render("▍") + "\n")
		case chat.StatusFailed:
			b.WriteString(failStyle.Render("(reply failed)") + "\n")
		case chat.StatusCanceled:
			b.WriteString(mutedStyle.Render("(stopped)") + "\n")
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func roleLabel(role chat.Role) string {
	switch role {
	case chat.RoleAssistant:
		return roleAsstStyle.Render("● assistant")
	case chat.RoleUser:
		return roleUserStyle.Render("○ you")
	default:
		return string(role)
	}
}

func listColumnWidth(width int) int {
	return min(max(width/3, minListWidth), maxListWidth)
}

// wrapText word-wraps every paragraph of text to width, keeping line breaks.
func wrapText(text string, width int) []string {
	if width <= 0 {
		return strings.Split(text, "\n")
	}

	lines := []string{}
	for paragraph := range strings.SplitSeq(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		current := ""
		for _, word := range words {
			if current == "" {
				current = word
				continue
			}
			if lipgloss.Width(current)+1+lipgloss.Width(word) <= width {
				current = current + " " + word
				continue
			}
			lines = append(lines, current)
			current = word
		}
		lines = append(lines, current)
	}
	return lines
}

func padLines(lines []string, width, height int) []string {
	if height <= 0 {
		return []string{}
	}
	result := make([]string, 0, height)
	for _, line := range lines {
		result = append(result, padRight(line, width))
		if len(result) >= height {
			return result[:height]
		}
	}
	for len(result) < height {
		result = append(result, strings.Repeat(" ", width))
	}
	return result
}

func padRight(value string, width int) string {
	lineWidth := lipgloss.Width(value)
	if lineWidth >= width {
		return value
	}
	return value + strings.Repeat(" ", width-lineWidth)
}

func joinColumns(left, right []string, gap int) []string {
	maxLines := max(len(right), len(left))
	lines := make([]string, 0, maxLines)
	gapSpace := strings.Repeat(" ", gap)
	for i := range maxLines {
		leftLine := ""
		if i < len(left) {
			leftLine = left[i]
		}
		rightLine := ""
		if i < len(right) {
			rightLine = right[i]
		}
		lines = append(lines, leftLine+gapSpace+rightLine)
	}
	return lines
}

func visibleRange(total, cursor, size int) (int, int) {
	if total <= 0 || size <= 0 {
		return 0, 0
	}
	if total <= size {
		return 0, total
	}
	cursor = clamp(cursor, total-1)
	start := max(cursor-(size/2), 0)
	end := start + size
	if end > total {
		end = total
		start = max(end-size, 0)
	}
	return start, end
}
