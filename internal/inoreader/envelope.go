package inoreader

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gorilla/feeds"
)

// Stream is the decoded body of a stream contents response.
type Stream struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Items []StreamItem `json:"items"`
}

// StreamItem is one article in a stream.
type StreamItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Published int64  `json:"published"`
	Summary   struct {
		Content string `json:"content"`
	} `json:"summary"`
	Canonical []struct {
		Href string `json:"href"`
	} `json:"canonical"`
}

// Link returns the canonical article link, "#" when there is none.
func (i StreamItem) Link() string {
	if len(i.Canonical) > 0 && i.Canonical[0].Href != "" {
		return i.Canonical[0].Href
	}
	return "#"
}

// Envelope renders a stream as an RSS document for the summarizer. Item
// summaries are reduced to plain text; the first image in each summary is
// kept as an enclosure.
func Envelope(feedURL string, stream *Stream) (string, error) {
	title := stream.Title
	if title == "" {
		title = feedURL
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: feedURL},
		Description: fmt.Sprintf("Inoreader stream %s", stream.ID),
	}

	for _, item := range stream.Items {
		feedItem := &feeds.Item{
			Title:       item.Title,
			Link:        &feeds.Link{Href: item.Link()},
			Description: PlainText(item.Summary.Content),
			Id:          item.ID,
		}
		if item.Author != "" {
			feedItem.Author = &feeds.Author{Name: item.Author}
		}
		if item.Published > 0 {
			feedItem.Created = time.Unix(item.Published, 0).UTC()
		}
		if img := FirstImage(item.Summary.Content); img != "" {
			feedItem.Enclosure = &feeds.Enclosure{Url: img, Type: imageType(img), Length: "0"}
		}

		feed.Items = append(feed.Items, feedItem)
	}

	rss, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("failed to render feed envelope: %w", err)
	}
	return rss, nil
}

func imageType(src string) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(src, "?", 2)[0]))
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}
