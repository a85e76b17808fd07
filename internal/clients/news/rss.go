package news

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/badbeats/pickgen/internal/models"
)

type rssDoc struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
}

// parseRSS decodes an RSS 2.0 document. Items without a title or link are
// dropped.
func parseRSS(body []byte, source string) ([]models.Article, error) {
	var doc rssDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse %s feed: %w", source, err)
	}

	articles := make([]models.Article, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		link := strings.TrimSpace(it.Link)
		if link == "" && strings.HasPrefix(it.GUID, "http") {
			link = strings.TrimSpace(it.GUID)
		}
		title := Clean(it.Title)
		if title == "" || link == "" {
			continue
		}
		articles = append(articles, models.Article{
			Title:       title,
			URL:         link,
			Source:      source,
			Summary:     Clean(it.Description),
			PublishedAt: parsePubDate(it.PubDate),
		})
	}
	return articles, nil
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
