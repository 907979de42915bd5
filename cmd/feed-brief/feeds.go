package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lepinkainen/feed-brief/internal/inoreader"
	"github.com/lepinkainen/feed-brief/internal/news"
)

func resolveFeeds(urls []string) error {
	var failed int
	for _, u := range urls {
		id, err := inoreader.ResolveStreamID(u)
		if err != nil {
			fmt.Printf("%s\t%v\n", u, err)
			failed++
			continue
		}
		fmt.Printf("%s\t%s\n", u, id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d feed URLs could not be resolved", failed, len(urls))
	}
	return nil
}

// fetchFeed downloads one feed with the stored credentials and prints the
// envelope the summarizer would see, item by item.
func fetchFeed(ctx context.Context, a *app, feedURL string, limit int) error {
	creds, err := a.creds.Load(ctx)
	if err != nil {
		return err
	}
	if !creds.HasToken() {
		return news.ErrMissingCredentials
	}
	if creds.Expired(time.Now()) {
		if creds, err = a.tokens.Refresh(ctx, *creds); err != nil {
			return err
		}
	}

	blob, err := a.fetcher.Fetch(ctx, feedURL, *creds)
	if err != nil {
		return err
	}

	feed, err := gofeed.NewParser().ParseString(blob)
	if err != nil {
		return fmt.Errorf("failed to parse feed envelope: %w", err)
	}

	fmt.Printf("%s (%d items)\n\n", feed.Title, len(feed.Items))
	for i, item := range feed.Items {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Printf("%2d. %s\n    %s\n", i+1, item.Title, item.Link)
		if item.PublishedParsed != nil {
			fmt.Printf("    %s\n", item.PublishedParsed.Local().Format(time.RFC3339))
		}
		for _, enc := range item.Enclosures {
			fmt.Printf("    image: %s\n", enc.URL)
		}
	}
	return nil
}
