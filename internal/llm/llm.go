// Package llm summarizes feed text, runs article-grounded chats and
// translates the string table through a hosted language model.
package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lepinkainen/feed-brief/internal/articles"
	"github.com/lepinkainen/feed-brief/internal/lang"
)

// MaxInputLength caps how many characters of feed text are sent for summarization.
const MaxInputLength = 250000

// Summarizer turns raw feed text into categorized articles.
type Summarizer interface {
	Summarize(ctx context.Context, apiKey, feedText string, language lang.Language) (articles.Categorized, error)
}

// ChatSession is an ongoing conversation about a set of articles.
type ChatSession interface {
	SendMessage(ctx context.Context, text string) (string, error)
}

// ChatStarter opens a conversation primed with articles and returns its greeting.
type ChatStarter interface {
	StartChat(ctx context.Context, apiKey string, list articles.Categorized, language lang.Language) (ChatSession, string, error)
}

// TableTranslator translates string table values into another language.
type TableTranslator interface {
	TranslateTable(ctx context.Context, apiKey string, table map[string]string, from, to lang.Language) (map[string]string, error)
}

// SummarizerError wraps any summarization failure.
type SummarizerError struct {
	Err error
}

func (e *SummarizerError) Error() string {
	return fmt.Sprintf("summarization failed: %v", e.Err)
}

func (e *SummarizerError) Unwrap() error { return e.Err }

// ChatError wraps any chat failure.
type ChatError struct {
	Err error
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat failed: %v", e.Err)
}

func (e *ChatError) Unwrap() error { return e.Err }

// Truncate cuts text to at most max characters without splitting a rune.
func Truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}

// Greeting is the first chat message shown after the session is primed.
func Greeting(language lang.Language) string {
	if language == lang.Farsi {
		return "سلام! من مقالات را خوانده‌ام. چگونه می‌توانم به شما در درک اخبار امروز کمک کنم؟"
	}
	return "Hello! I've read the articles. How can I help you understand today's news?"
}

// FormatContext renders articles as the markdown context a chat is primed with.
func FormatContext(list articles.Categorized) string {
	var sb strings.Builder
	sb.WriteString("Here are the news articles:\n\n")
	for _, g := range list {
		fmt.Fprintf(&sb, "## Category: %s\n\n", g.Category)
		for _, a := range g.Articles {
			fmt.Fprintf(&sb, "### Title: %s\n", a.Title)
			fmt.Fprintf(&sb, "Summary: %s\n", a.Summary)
			fmt.Fprintf(&sb, "URL: %s\n\n", a.URL)
		}
	}
	return sb.String()
}
