package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/killallgit/normachat/pkg/chat"
	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/norma"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	archivedTag = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render("[archivada]")
)

const timeLayout = "2006-01-02 15:04"

func renderConversations(w io.Writer, convs []chat.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No hay conversaciones."))
		return
	}
	for _, c := range convs {
		line := fmt.Sprintf("%s  %s", dimStyle.Render(c.ID), titleStyle.Render(c.Title))
		if c.Archived {
			line += " " + archivedTag
		}
		fmt.Fprintln(w, line)

		meta := []string{c.ChatType, c.UpdatedAt.Local().Format(timeLayout)}
		if c.TotalTokens > 0 {
			meta = append(meta, fmt.Sprintf("%d tokens", c.TotalTokens))
		}
		fmt.Fprintln(w, "  "+dimStyle.Render(strings.Join(meta, " · ")))
		if c.Snippet != "" {
			fmt.Fprintln(w, "  "+c.Snippet)
		}
	}
}

// markdown renders assistant replies for the terminal.
// A nil markdown prints replies as they came from the backend.
type markdown struct {
	renderer *glamour.TermRenderer
}

func newMarkdown(width int) (*markdown, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStylePath("notty"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &markdown{renderer: renderer}, nil
}

func (md *markdown) render(content string) string {
	if md == nil {
		return content
	}
	out, err := md.renderer.Render(content)
	if err != nil {
		logger.Debug("render: markdown failed, printing raw reply: %v", err)
		return content
	}
	return "\n" + strings.TrimRight(out, "\n")
}

func renderConversation(w io.Writer, conv chat.Conversation, messages []chat.Message, md *markdown) {
	renderConversations(w, []chat.Conversation{conv})
	fmt.Fprintln(w)
	for _, m := range messages {
		renderMessage(w, m, md)
	}
}

func renderMessage(w io.Writer, m chat.Message, md *markdown) {
	switch m.Role {
	case chat.RoleUser:
		fmt.Fprintln(w, userStyle.Render("vos> ")+m.Content)
	case chat.RoleAssistant:
		fmt.Fprintln(w, botStyle.Render("normachat> ")+md.render(m.Content))
		renderMessageFooter(w, m)
	default:
		fmt.Fprintln(w, dimStyle.Render(m.Content))
	}
}

func renderMessageFooter(w io.Writer, m chat.Message) {
	var parts []string
	if docs := m.RelevantDocs(); len(docs) > 0 {
		parts = append(parts, "normas "+joinIDs(docs))
	}
	if m.Feedback != nil {
		parts = append(parts, "feedback "+string(m.Feedback.Kind))
	}
	if m.ID != "" {
		parts = append(parts, "id "+m.ID)
	}
	if len(parts) > 0 {
		fmt.Fprintln(w, "  "+dimStyle.Render(strings.Join(parts, " · ")))
	}
}

func renderNormas(w io.Writer, normas []norma.Norma) {
	for _, n := range normas {
		fmt.Fprintf(w, "%s  %s\n", dimStyle.Render(fmt.Sprintf("%d", n.ID)), titleStyle.Render(n.DisplayName()))
		if n.Title != "" && n.Title != n.DisplayName() {
			fmt.Fprintln(w, "  "+n.Title)
		}
		var meta []string
		if !n.PublishedAt.IsZero() {
			meta = append(meta, n.PublishedAt.Format("2006-01-02"))
		}
		if n.Jurisdiction != "" {
			meta = append(meta, n.Jurisdiction)
		}
		if n.Source != "" {
			meta = append(meta, n.Source)
		}
		if len(meta) > 0 {
			fmt.Fprintln(w, "  "+dimStyle.Render(strings.Join(meta, " · ")))
		}
		if n.Summary != "" {
			fmt.Fprintln(w, "  "+n.Summary)
		}
		if n.URL != "" {
			fmt.Fprintln(w, "  "+dimStyle.Render(n.URL))
		}
	}
}

func renderError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("error: "+err.Error()))
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
