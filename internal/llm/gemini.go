package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lepinkainen/feed-brief/internal/articles"
	"github.com/lepinkainen/feed-brief/internal/lang"
	"github.com/lepinkainen/feed-brief/pkg/ratelimit"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for every call.
const DefaultModel = "gemini-2.5-flash"

// ErrMissingAPIKey is returned when a call is made without an API key.
var ErrMissingAPIKey = errors.New("missing Gemini API key")

// Gemini implements Summarizer, ChatStarter and TableTranslator on the Gemini API.
type Gemini struct {
	model      string
	httpClient *http.Client
	baseURL    string
	limiter    ratelimit.Limiter
}

var (
	_ Summarizer      = (*Gemini)(nil)
	_ ChatStarter     = (*Gemini)(nil)
	_ TableTranslator = (*Gemini)(nil)
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	Model string
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL    string
	HTTPClient *http.Client
	Limiter    ratelimit.Limiter
}

// NewGemini creates a Gemini backend.
func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NoOp{}
	}
	return &Gemini{
		model:      cfg.Model,
		httpClient: cfg.HTTPClient,
		baseURL:    cfg.BaseURL,
		limiter:    cfg.Limiter,
	}
}

func (g *Gemini) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
}

func articleSchema(language lang.Language) *genai.Schema {
	name := language.Info().Name
	nullable := true
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":    {Type: genai.TypeString, Description: "The article title, in its original language."},
				"summary":  {Type: genai.TypeString, Description: "A brief summary of the article in " + name + "."},
				"url":      {Type: genai.TypeString, Description: "The URL of the original article."},
				"category": {Type: genai.TypeString, Description: "A relevant category for the article in " + name + "."},
				"imageUrl": {Type: genai.TypeString, Description: "URL of a relevant image for the article. Can be null.", Nullable: &nullable},
			},
			Required: []string{"title", "summary", "url", "category"},
		},
	}
}

// Summarize asks the model for a JSON article list and groups it by category.
func (g *Gemini) Summarize(ctx context.Context, apiKey, feedText string, language lang.Language) (articles.Categorized, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return nil, &SummarizerError{Err: err}
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(summaryPrompt(feedText, language)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   articleSchema(language),
	})
	if err != nil {
		return nil, &SummarizerError{Err: err}
	}

	list, err := ParseArticles(resp.Text())
	if err != nil {
		return nil, &SummarizerError{Err: err}
	}

	slog.Debug("Summarized feeds", "articles", len(list), "language", language)
	return articles.GroupByCategory(list), nil
}

// ParseArticles decodes the model's JSON array. Blank or "null" image URLs become nil.
func ParseArticles(text string) ([]articles.Article, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty model response")
	}

	var list []articles.Article
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		return nil, fmt.Errorf("model response is not an article list: %w", err)
	}

	for i := range list {
		if img := list[i].ImageURL; img != nil {
			if v := strings.TrimSpace(*img); v == "" || strings.EqualFold(v, "null") {
				list[i].ImageURL = nil
			}
		}
	}
	return list, nil
}

type geminiChat struct {
	chat *genai.Chat
}

func (c *geminiChat) SendMessage(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", &ChatError{Err: err}
	}
	return resp.Text(), nil
}

// StartChat creates a chat whose history already holds the article context
// and the model's acknowledgement.
func (g *Gemini) StartChat(ctx context.Context, apiKey string, list articles.Categorized, language lang.Language) (ChatSession, string, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return nil, "", &ChatError{Err: err}
	}

	history := []*genai.Content{
		genai.NewContentFromText(FormatContext(list), genai.RoleUser),
		genai.NewContentFromText(chatAcknowledgement(language), genai.RoleModel),
	}

	chat, err := client.Chats.Create(ctx, g.model, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(chatInstruction(language), genai.RoleUser),
	}, history)
	if err != nil {
		return nil, "", &ChatError{Err: err}
	}

	return &geminiChat{chat: chat}, Greeting(language), nil
}

// TranslateTable asks the model to translate every value of table.
func (g *Gemini) TranslateTable(ctx context.Context, apiKey string, table map[string]string, from, to lang.Language) (map[string]string, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	payload, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode string table: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(translationPrompt(string(payload), from, to)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("translation request failed: %w", err)
	}

	var out map[string]string
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text())), &out); err != nil {
		return nil, fmt.Errorf("failed to get valid translation from model: %w", err)
	}
	return out, nil
}
