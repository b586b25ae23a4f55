package database

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"feedbot/internal/model"
)

// snapshot is the on-disk form of the whole store. The subscriber index is
// never stored; it is rebuilt from the feed records' subscriber sets on
// load, which removes one way for the two structures to drift apart.
type snapshot struct {
	Feeds        []feedRecord    `json:"feeds"`
	LinkPreviews []previewRecord `json:"lp"`
}

type feedRecord struct {
	Link        string               `json:"link"`
	Title       string               `json:"title"`
	ErrorCount  int                  `json:"error_count"`
	Subscribers []model.SubscriberID `json:"subscribers"`
	ItemHashes  []uint64             `json:"hash_list"`
}

type previewRecord struct {
	Subscriber model.SubscriberID `json:"subscriber"`
	Feed       model.FeedID       `json:"feed"`
	Preview    model.LinkPreview  `json:"preview"`
}

// Create makes an empty store backed by the given path and persists it
// immediately.
func Create(path string, options ...Option) (*Database, error) {
	db := newDatabase(path, options...)
	if err := db.saveLocked(); err != nil {
		return nil, err
	}
	return db, nil
}

// Open loads the snapshot at path, rebuilding the subscriber index and the
// link-preview matrix from the stored feed records and preview triples.
// A missing file behaves as Create. An unreadable file yields an OpenError;
// a file that does not parse into the expected shape yields a FormatError.
func Open(path string, options ...Option) (*Database, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Create(path, options...)
	}
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &FormatError{Err: err}
	}

	db := newDatabase(path, options...)
	for _, record := range snap.Feeds {
		feed := &model.Feed{
			Link:        record.Link,
			Title:       record.Title,
			ErrorCount:  record.ErrorCount,
			Subscribers: make(map[model.SubscriberID]struct{}, len(record.Subscribers)),
			ItemHashes:  record.ItemHashes,
		}
		feedID := feed.ID()
		for _, subscriber := range record.Subscribers {
			feed.Subscribers[subscriber] = struct{}{}
			subscribed := db.subscribers[subscriber]
			if subscribed == nil {
				subscribed = make(map[model.FeedID]struct{})
				db.subscribers[subscriber] = subscribed
			}
			subscribed[feedID] = struct{}{}
		}
		db.feeds[feedID] = feed
	}
	for _, entry := range snap.LinkPreviews {
		db.previews[previewKey{Subscriber: entry.Subscriber, Feed: entry.Feed}] = entry.Preview
	}
	return db, nil
}

// saveLocked serializes the full store to the backing file. It writes a
// temporary file in the snapshot directory and renames it into place, so a
// crash mid-write can never leave a truncated snapshot behind. Records are
// sorted so the same logical state always produces the same bytes.
// Callers must hold db.mu (or own the store exclusively).
func (db *Database) saveLocked() error {
	snap := snapshot{
		Feeds:        make([]feedRecord, 0, len(db.feeds)),
		LinkPreviews: make([]previewRecord, 0, len(db.previews)),
	}
	for _, feed := range db.feeds {
		subscribers := make([]model.SubscriberID, 0, len(feed.Subscribers))
		for subscriber := range feed.Subscribers {
			subscribers = append(subscribers, subscriber)
		}
		sort.Slice(subscribers, func(i, j int) bool { return subscribers[i] < subscribers[j] })
		snap.Feeds = append(snap.Feeds, feedRecord{
			Link:        feed.Link,
			Title:       feed.Title,
			ErrorCount:  feed.ErrorCount,
			Subscribers: subscribers,
			ItemHashes:  feed.ItemHashes,
		})
	}
	sort.Slice(snap.Feeds, func(i, j int) bool { return snap.Feeds[i].Link < snap.Feeds[j].Link })

	for key, preview := range db.previews {
		snap.LinkPreviews = append(snap.LinkPreviews, previewRecord{
			Subscriber: key.Subscriber,
			Feed:       key.Feed,
			Preview:    preview,
		})
	}
	sort.Slice(snap.LinkPreviews, func(i, j int) bool {
		a, b := snap.LinkPreviews[i], snap.LinkPreviews[j]
		if a.Subscriber != b.Subscriber {
			return a.Subscriber < b.Subscriber
		}
		return a.Feed < b.Feed
	})

	data, err := json.Marshal(snap)
	if err != nil {
		return &SaveError{Path: db.path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(db.path), filepath.Base(db.path)+".tmp-")
	if err != nil {
		return &SaveError{Path: db.path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &SaveError{Path: db.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &SaveError{Path: db.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), db.path); err != nil {
		os.Remove(tmp.Name())
		return &SaveError{Path: db.path, Err: err}
	}
	return nil
}
