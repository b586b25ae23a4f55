// Package database provides the subscription store: an in-memory graph of
// feeds, subscribers, and link-preview preferences persisted to a single
// snapshot file.
//
// The store keeps three mutually consistent indices: feed records keyed by
// the 64-bit hash of their link, a subscriber index mapping each subscriber
// to the feeds it follows, and a link-preview matrix keyed by (subscriber,
// feed) pairs. Every mutating operation holds one mutex for its whole
// duration, so callers observe operations in a strict total order.
package database

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"feedbot/internal/model"
)

// SubscriptionResult reports what a successful Subscribe call changed.
type SubscriptionResult int

const (
	// NewlySubscribed means the (subscriber, feed) pair had no prior
	// link-preview entry: a brand-new subscription.
	NewlySubscribed SubscriptionResult = iota
	// LinkPreviewUpdated means the subscription already existed and only
	// its link-preview preference changed.
	LinkPreviewUpdated
)

func (r SubscriptionResult) String() string {
	switch r {
	case NewlySubscribed:
		return "newly subscribed"
	case LinkPreviewUpdated:
		return "link preview updated"
	default:
		return "unknown"
	}
}

type previewKey struct {
	Subscriber model.SubscriberID
	Feed       model.FeedID
}

// Option mutates store configuration.
type Option func(*Database)

// WithLogger injects the logger used for non-fatal persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(db *Database) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// Database is the subscription store. It is safe for concurrent use.
type Database struct {
	path   string
	logger *slog.Logger

	mu          sync.Mutex
	feeds       map[model.FeedID]*model.Feed
	subscribers map[model.SubscriberID]map[model.FeedID]struct{}
	previews    map[previewKey]model.LinkPreview
}

func newDatabase(path string, options ...Option) *Database {
	db := &Database{
		path:        path,
		logger:      slog.Default(),
		feeds:       make(map[model.FeedID]*model.Feed),
		subscribers: make(map[model.SubscriberID]map[model.FeedID]struct{}),
		previews:    make(map[previewKey]model.LinkPreview),
	}
	for _, option := range options {
		option(db)
	}
	return db
}

// Path returns the location of the backing snapshot file.
func (db *Database) Path() string {
	return db.path
}

// Subscribe adds subscriber to the feed at link, creating the feed record on
// first subscription. The fetched feed supplies the initial title and a
// baseline item-hash history so items already present at subscribe time are
// not announced as new on the first poll.
//
// It fails with ErrAlreadySubscribed when the subscriber already follows the
// feed with an identical link-preview preference; in that case no state
// changes and nothing is persisted. On success the snapshot is written and
// the result tells whether the subscription is new or only its preview
// preference changed.
func (db *Database) Subscribe(subscriber model.SubscriberID, link string, fetched model.FetchedFeed, preview model.LinkPreview) (SubscriptionResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	feedID := model.FeedIDOf(link)
	key := previewKey{Subscriber: subscriber, Feed: feedID}

	subscribed := db.subscribers[subscriber]
	if _, member := subscribed[feedID]; member {
		if prior, ok := db.previews[key]; ok && prior == preview {
			return 0, ErrAlreadySubscribed
		}
	}

	if subscribed == nil {
		subscribed = make(map[model.FeedID]struct{})
		db.subscribers[subscriber] = subscribed
	}
	subscribed[feedID] = struct{}{}

	feed, ok := db.feeds[feedID]
	if !ok {
		feed = &model.Feed{
			Link:        link,
			Title:       fetched.Title,
			Subscribers: make(map[model.SubscriberID]struct{}),
			ItemHashes:  hashItems(fetched.Items),
		}
		db.feeds[feedID] = feed
	}
	feed.Subscribers[subscriber] = struct{}{}

	result := NewlySubscribed
	if _, hadPrior := db.previews[key]; hadPrior {
		result = LinkPreviewUpdated
	}
	db.previews[key] = preview

	if err := db.saveLocked(); err != nil {
		return result, err
	}
	return result, nil
}

// Unsubscribe removes subscriber from the feed at link. It fails with
// ErrNotSubscribed when the subscriber is unknown, the feed is unknown, or
// the membership does not exist. On success it returns a copy of the feed
// record taken just before any deletion, drops the feed record when its last
// subscriber leaves, clears the link-preview entry for the pair, and
// persists the snapshot.
func (db *Database) Unsubscribe(subscriber model.SubscriberID, link string) (model.Feed, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.unsubscribeLocked(subscriber, model.FeedIDOf(link))
}

func (db *Database) unsubscribeLocked(subscriber model.SubscriberID, feedID model.FeedID) (model.Feed, error) {
	subscribed, ok := db.subscribers[subscriber]
	if !ok {
		return model.Feed{}, ErrNotSubscribed
	}
	if _, member := subscribed[feedID]; !member {
		return model.Feed{}, ErrNotSubscribed
	}
	feed, ok := db.feeds[feedID]
	if !ok {
		return model.Feed{}, ErrNotSubscribed
	}
	if _, member := feed.Subscribers[subscriber]; !member {
		return model.Feed{}, ErrNotSubscribed
	}

	delete(subscribed, feedID)
	if len(subscribed) == 0 {
		delete(db.subscribers, subscriber)
	}
	delete(feed.Subscribers, subscriber)
	removed := feed.Clone()
	if len(feed.Subscribers) == 0 {
		delete(db.feeds, feedID)
	}
	delete(db.previews, previewKey{Subscriber: subscriber, Feed: feedID})

	if err := db.saveLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

// DeleteSubscriber unsubscribes the given subscriber from every feed it
// follows. Used when a subscriber's chat becomes permanently unreachable.
// It keeps going past persistence failures and returns the last one.
func (db *Database) DeleteSubscriber(subscriber model.SubscriberID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	feedIDs := make([]model.FeedID, 0, len(db.subscribers[subscriber]))
	for feedID := range db.subscribers[subscriber] {
		feedIDs = append(feedIDs, feedID)
	}

	var lastErr error
	for _, feedID := range feedIDs {
		if _, err := db.unsubscribeLocked(subscriber, feedID); err != nil && !errors.Is(err, ErrNotSubscribed) {
			lastErr = err
		}
	}
	return lastErr
}

// ReassignSubscriber migrates every subscription and link-preview setting
// owned by from to to, merging into to's existing subscriptions. This is a
// raw relabeling used when a subscriber's identity changes; it never reports
// ErrAlreadySubscribed. A moved link-preview value replaces any preference
// the destination already had for the same feed. No-op when from is unknown.
func (db *Database) ReassignSubscriber(from, to model.SubscriberID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	feedIDs, ok := db.subscribers[from]
	if !ok {
		return nil
	}
	delete(db.subscribers, from)

	dest := db.subscribers[to]
	if dest == nil {
		dest = make(map[model.FeedID]struct{}, len(feedIDs))
		db.subscribers[to] = dest
	}
	for feedID := range feedIDs {
		dest[feedID] = struct{}{}
		if feed, ok := db.feeds[feedID]; ok {
			delete(feed.Subscribers, from)
			feed.Subscribers[to] = struct{}{}
		}
		fromKey := previewKey{Subscriber: from, Feed: feedID}
		if preview, ok := db.previews[fromKey]; ok {
			delete(db.previews, fromKey)
			db.previews[previewKey{Subscriber: to, Feed: feedID}] = preview
		}
	}

	return db.saveLocked()
}

// IncErrorCount increments and returns the consecutive-failure counter of
// the feed at link. Unknown feeds return zero. The counter is transient
// bookkeeping and is not persisted by itself.
func (db *Database) IncErrorCount(link string) int {
	db.mu.Lock()
	defer db.mu.Unlock()

	feed, ok := db.feeds[model.FeedIDOf(link)]
	if !ok {
		return 0
	}
	feed.ErrorCount++
	return feed.ErrorCount
}

// ResetErrorCount sets the feed's failure counter back to zero. No-op for
// unknown feeds; never persists by itself.
func (db *Database) ResetErrorCount(link string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if feed, ok := db.feeds[model.FeedIDOf(link)]; ok {
		feed.ErrorCount = 0
	}
}

// UpdateTitle overwrites the feed's title. No-op for unknown feeds. The new
// title reaches disk with the next persisted mutation.
func (db *Database) UpdateTitle(link, title string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if feed, ok := db.feeds[model.FeedIDOf(link)]; ok {
		feed.Title = title
	}
}

// Update runs change detection for the feed at link against a freshly
// fetched item sequence and returns the items not seen before, in their
// fetched order. It resets the feed's failure counter, and when new items
// exist it replaces the stored hash history with the fetched hashes followed
// by as much prior history as fits under a cap of twice the fetched length,
// then persists. Poll cycles yielding nothing new leave the history and the
// snapshot untouched. Unknown feeds return nil.
func (db *Database) Update(link string, items []model.Item) []model.Item {
	db.mu.Lock()
	defer db.mu.Unlock()

	feed, ok := db.feeds[model.FeedIDOf(link)]
	if !ok {
		return nil
	}
	feed.ErrorCount = 0

	fetched := make([]uint64, len(items))
	var fresh []model.Item
	for i, item := range items {
		fetched[i] = model.ItemHash(item)
		if !containsHash(feed.ItemHashes, fetched[i]) {
			fresh = append(fresh, item)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	limit := 2 * len(items)
	rebuilt := fetched
	for _, hash := range feed.ItemHashes {
		if len(rebuilt) >= limit {
			break
		}
		rebuilt = append(rebuilt, hash)
	}
	feed.ItemHashes = rebuilt

	// A failed save here must not fail the poll; the next successful
	// mutation writes the same state.
	if err := db.saveLocked(); err != nil {
		db.logger.Warn("snapshot save failed after feed update",
			"link", link, "error", err)
	}
	return fresh
}

// GetAllFeeds returns copies of every feed record.
func (db *Database) GetAllFeeds() []model.Feed {
	db.mu.Lock()
	defer db.mu.Unlock()

	feeds := make([]model.Feed, 0, len(db.feeds))
	for _, feed := range db.feeds {
		feeds = append(feeds, feed.Clone())
	}
	return feeds
}

// GetSubscribedFeeds returns copies of the feeds the subscriber follows.
// The second result is false when the subscriber is unknown, which is
// distinct from a known subscriber with an empty list (a state that cannot
// persist, but the contract keeps the two apart).
func (db *Database) GetSubscribedFeeds(subscriber model.SubscriberID) ([]model.Feed, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	feedIDs, ok := db.subscribers[subscriber]
	if !ok {
		return nil, false
	}
	feeds := make([]model.Feed, 0, len(feedIDs))
	for feedID := range feedIDs {
		if feed, ok := db.feeds[feedID]; ok {
			feeds = append(feeds, feed.Clone())
		}
	}
	return feeds, true
}

// GetAllSubscribers returns every subscriber currently following at least
// one feed, in ascending id order.
func (db *Database) GetAllSubscribers() []model.SubscriberID {
	db.mu.Lock()
	defer db.mu.Unlock()

	subscribers := make([]model.SubscriberID, 0, len(db.subscribers))
	for subscriber := range db.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	sort.Slice(subscribers, func(i, j int) bool { return subscribers[i] < subscribers[j] })
	return subscribers
}

// GetLinkPreview returns the link-preview preference stored for the
// (subscriber, feed) pair, and whether one exists. Entries are written only
// through Subscribe and cleared when the subscription ends.
func (db *Database) GetLinkPreview(subscriber model.SubscriberID, feedID model.FeedID) (model.LinkPreview, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	preview, ok := db.previews[previewKey{Subscriber: subscriber, Feed: feedID}]
	return preview, ok
}

func hashItems(items []model.Item) []uint64 {
	hashes := make([]uint64, len(items))
	for i, item := range items {
		hashes[i] = model.ItemHash(item)
	}
	return hashes
}

func containsHash(hashes []uint64, hash uint64) bool {
	for _, h := range hashes {
		if h == hash {
			return true
		}
	}
	return false
}
