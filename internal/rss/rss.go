// Package rss adapts parsed RSS/Atom documents to the store's model types.
//
// Fetching is deliberately absent: the poller owns network access and hands
// already-retrieved documents to Parse.
package rss

import (
	"fmt"
	"io"

	"github.com/mmcdole/gofeed"

	"feedbot/internal/model"
)

// Parse reads an RSS, Atom, or JSON feed document and converts it.
func Parse(r io.Reader) (model.FetchedFeed, error) {
	parsed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return model.FetchedFeed{}, fmt.Errorf("parse feed: %w", err)
	}
	return FromParsed(parsed), nil
}

// FromParsed converts a gofeed document, preserving item order. An item
// without a GUID falls back to its link as the stable identifier, matching
// the dedup key used downstream.
func FromParsed(parsed *gofeed.Feed) model.FetchedFeed {
	fetched := model.FetchedFeed{
		Title: parsed.Title,
		Items: make([]model.Item, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		fetched.Items = append(fetched.Items, model.Item{
			GUID:  guid,
			Title: item.Title,
			Link:  item.Link,
		})
	}
	return fetched
}
