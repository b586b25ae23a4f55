package model

import "github.com/cespare/xxhash/v2"

// Identity hashing. Feeds and items are keyed by 64-bit hashes instead of
// assigned ids; a collision between two distinct links or items would merge
// unrelated records. This is an accepted, documented risk.
//
// The hash function defines the storage format: snapshots key feed records
// by the derived hash, so changing the algorithm invalidates existing
// snapshot files.

// FeedIDOf derives the feed identifier for a canonical link.
func FeedIDOf(link string) FeedID {
	return FeedID(xxhash.Sum64String(link))
}

// ItemHash derives the identity hash for a feed item. Items carrying a
// stable identifier hash that; all others fall back to a composite of
// title and link.
func ItemHash(item Item) uint64 {
	if item.GUID != "" {
		return xxhash.Sum64String(item.GUID)
	}
	return xxhash.Sum64String(item.Title + item.Link)
}
