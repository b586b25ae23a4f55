// Package model defines shared data structures.
package model

// FeedID identifies a feed by the 64-bit hash of its canonical link.
type FeedID uint64

// SubscriberID identifies a chat or channel that can hold subscriptions.
type SubscriberID int64

// Feed represents one content source and the subscriptions attached to it.
type Feed struct {
	// Link is the canonical source address, immutable once created.
	Link string
	// Title is the human-readable name, refreshed when the upstream
	// title changes.
	Title string
	// ErrorCount counts consecutive fetch/parse failures; reset to zero
	// on any successful update.
	ErrorCount int
	// Subscribers is the set of subscriber ids currently following this
	// feed. A feed exists only while this set is non-empty.
	Subscribers map[SubscriberID]struct{}
	// ItemHashes is the bounded history of item identity hashes, most
	// recently fetched first. Used to recognize previously seen items.
	ItemHashes []uint64
}

// ID returns the feed identifier derived from the canonical link.
func (f *Feed) ID() FeedID {
	return FeedIDOf(f.Link)
}

// Clone returns a deep copy that shares no state with f.
func (f *Feed) Clone() Feed {
	clone := Feed{
		Link:        f.Link,
		Title:       f.Title,
		ErrorCount:  f.ErrorCount,
		Subscribers: make(map[SubscriberID]struct{}, len(f.Subscribers)),
		ItemHashes:  append([]uint64(nil), f.ItemHashes...),
	}
	for subscriber := range f.Subscribers {
		clone.Subscribers[subscriber] = struct{}{}
	}
	return clone
}

// Item represents a single entry of a fetched feed document.
// All fields are optional; absent values are empty strings.
type Item struct {
	GUID  string // stable identifier from the feed, when present
	Title string
	Link  string
}

// FetchedFeed is the parsed result of one feed retrieval, as delivered
// by the parsing collaborator. Item order is the source order.
type FetchedFeed struct {
	Title string
	Items []Item
}
