package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/lepinkainen/feed-brief/internal/config"
	"github.com/lepinkainen/feed-brief/internal/i18n"
	"github.com/lepinkainen/feed-brief/internal/lang"
)

func notBlank(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func languageOptions() []huh.Option[string] {
	var opts []huh.Option[string]
	for _, info := range lang.All() {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", info.NativeName, info.Name), string(info.Code)))
	}
	return opts
}

// setup asks for the Inoreader application, the Gemini key, the feeds and
// the language, then saves them.
func setup(ctx context.Context, a *app) error {
	cfg := a.cfg
	t := func(key string, pairs ...string) string {
		return i18n.Plain(a.catalog.T(key, pairs...))
	}

	clientID := cfg.Inoreader.ClientID
	clientSecret := cfg.Inoreader.ClientSecret
	redirectURL := cfg.Inoreader.RedirectURL
	apiKey, _ := a.creds.APIKey(ctx)
	feeds := strings.Join(cfg.Feeds.URLs, "\n")
	language := string(a.language)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(t("settingsModal.instructionsTitle")).
				Description(strings.Join([]string{
					t("settingsModal.instructions.step1"),
					t("settingsModal.instructions.step2"),
					t("settingsModal.instructions.step3", "redirectUri", redirectURL),
					t("settingsModal.instructions.step4"),
				}, "\n")),
			huh.NewInput().
				Title(t("settingsModal.clientIdLabel")).
				Placeholder(t("settingsModal.clientIdPlaceholder")).
				Value(&clientID).
				Validate(notBlank),
			huh.NewInput().
				Title(t("settingsModal.clientSecretLabel")).
				Placeholder(t("settingsModal.clientSecretPlaceholder")).
				EchoMode(huh.EchoModePassword).
				Value(&clientSecret).
				Validate(notBlank),
			huh.NewInput().
				Title("Redirect URI").
				Value(&redirectURL).
				Validate(notBlank),
		).Title(t("settingsModal.title")),
		huh.NewGroup(
			huh.NewInput().
				Title(t("settingsModal.geminiApiKeyLabel")).
				Description(t("settingsModal.geminiInstructions")).
				Placeholder(t("settingsModal.geminiApiKeyPlaceholder")).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewSelect[string]().
				Title("Language").
				Options(languageOptions()...).
				Value(&language),
		).Title(t("settingsModal.geminiTitle")),
		huh.NewGroup(
			huh.NewText().
				Title("Feeds").
				Description("One Inoreader folder, tag or feed URL per line").
				Lines(8).
				Value(&feeds),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return err
	}

	cfg.Inoreader.ClientID = strings.TrimSpace(clientID)
	cfg.Inoreader.ClientSecret = strings.TrimSpace(clientSecret)
	cfg.Inoreader.RedirectURL = strings.TrimSpace(redirectURL)
	cfg.Language = language
	cfg.Feeds.URLs = nil
	for _, line := range strings.Split(feeds, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			cfg.Feeds.URLs = append(cfg.Feeds.URLs, line)
		}
	}

	if err := config.SaveConfig(cfg, CLI.Config); err != nil {
		return err
	}
	if err := a.creds.SetAPIKey(ctx, apiKey); err != nil {
		return err
	}
	a.news.Invalidate()
	if err := a.useLanguage(ctx, language); err != nil {
		return err
	}

	fmt.Printf("Saved %s\n", cfg.Path())
	fmt.Println("Run 'feed-brief auth login' to connect to Inoreader.")
	return nil
}
