package domain

import "time"

// BookTop is the top level of one venue's order book for a single instrument.
// A new BookTop fully supersedes the previous one from the same venue.
type BookTop struct {
	Venue      string
	Instrument string
	BidPrice   float64
	BidSize    float64
	AskPrice   float64
	AskSize    float64
	CapturedAt time.Time
}

// Valid reports whether both sides of the book are present.
func (b BookTop) Valid() bool {
	return b.BidPrice > 0 && b.AskPrice > 0
}

// Age returns how old the snapshot is relative to now.
func (b BookTop) Age(now time.Time) time.Duration {
	return now.Sub(b.CapturedAt)
}

// SnapshotPair couples the most recent tops from the spot venue and the
// contract venue. A pair may only feed a trading decision while fresh.
type SnapshotPair struct {
	Spot     BookTop
	Contract BookTop
	PairedAt time.Time
}

// Fresh reports whether both snapshots are valid and younger than maxAge
// as of now.
func (p SnapshotPair) Fresh(now time.Time, maxAge time.Duration) bool {
	if !p.Spot.Valid() || !p.Contract.Valid() {
		return false
	}
	return p.Spot.Age(now) <= maxAge && p.Contract.Age(now) <= maxAge
}
