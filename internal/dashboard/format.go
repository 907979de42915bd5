// Package dashboard is the terminal view of a briefing: categories, article
// details and the follow-up chat, built on Bubble Tea.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/lepinkainen/feed-brief/internal/articles"
	"github.com/lepinkainen/feed-brief/internal/news"
)

const ruler = "═══════════════════════════════════════════════════════════════════════\n"

// wrapText wraps text to the specified width, breaking at word boundaries when possible
func wrapText(text string, width int) string {
	if width <= 0 {
		width = 70
	}

	var result strings.Builder
	var line strings.Builder
	lineLen := 0

	words := strings.Fields(text)
	for i, word := range words {
		wordLen := len([]rune(word))

		if lineLen > 0 && lineLen+1+wordLen > width {
			result.WriteString(line.String())
			result.WriteString("\n")
			line.Reset()
			lineLen = 0
		}

		if lineLen > 0 {
			line.WriteString(" ")
			lineLen++
		}

		line.WriteString(word)
		lineLen += wordLen

		if i == len(words)-1 {
			result.WriteString(line.String())
		}
	}

	return result.String()
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// FormatListItem formats one article as a list row.
// Example: " 1. Chips rally on export news  [img]"
func FormatListItem(index int, a articles.Article) string {
	const maxTitleLength = 70

	line := fmt.Sprintf("%2d. %s", index+1, truncate(a.Title, maxTitleLength))
	if a.Image() != "" {
		line += "  [img]"
	}
	return line
}

// FormatDetail formats a single article with all fields.
func FormatDetail(a articles.Article, readMore string, width int) string {
	var b strings.Builder

	b.WriteString(ruler)
	fmt.Fprintf(&b, "%s\n", a.Title)
	fmt.Fprintf(&b, "[%s]\n\n", a.Category)
	if a.Summary != "" {
		b.WriteString(wrapText(a.Summary, width))
		b.WriteString("\n\n")
	}
	if a.URL != "" {
		fmt.Fprintf(&b, "%s: %s\n", readMore, a.URL)
	}
	if img := a.Image(); img != "" {
		fmt.Fprintf(&b, "Image: %s\n", img)
	}
	b.WriteString(ruler)

	return b.String()
}

// FormatTranscript renders chat messages, oldest first.
func FormatTranscript(history []news.Message, width int) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		prefix := "AI"
		if m.Role == news.RoleUser {
			prefix = "You"
		}
		fmt.Fprintf(&b, "%s: %s\n", prefix, wrapText(m.Content, width))
	}
	return b.String()
}

// formatTimeAgo formats a time.Time as a human-readable "X ago" string
func formatTimeAgo(t, now time.Time) string {
	duration := now.Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		return t.Format("2006-01-02 15:04")
	}
}
