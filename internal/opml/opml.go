// Package opml handles importing and exporting OPML subscription lists.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"

	"feedbot/internal/model"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (a feed or a grouping).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Entry is one feed from an OPML document.
type Entry struct {
	Title string
	URL   string
}

// Parse reads an OPML document and returns its feeds as a flat list,
// ignoring any folder nesting.
func Parse(r io.Reader) ([]Entry, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var entries []Entry
	var walk func(outlines []Outline)
	walk = func(outlines []Outline) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				entries = append(entries, Entry{Title: title, URL: o.XMLURL})
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)
	return entries, nil
}

// Export generates an OPML 2.0 document listing the given feeds, sorted by
// title.
func Export(title string, feeds []model.Feed) ([]byte, error) {
	sorted := append([]model.Feed(nil), feeds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Title < sorted[j].Title })

	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}
	for _, feed := range sorted {
		doc.Body.Outlines = append(doc.Body.Outlines, Outline{
			Text:   feed.Title,
			Title:  feed.Title,
			Type:   "rss",
			XMLURL: feed.Link,
		})
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}
