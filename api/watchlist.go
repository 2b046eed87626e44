package api

import (
	"sync"

	"cosmossdk.io/math"
	"github.com/huandu/skiplist"
)

// hfKeyAsc is a comparator for ascending health factor order (riskiest first)
type hfKeyAsc struct{}

func (k hfKeyAsc) Compare(lhs, rhs interface{}) int {
	l := lhs.(math.LegacyDec)
	r := rhs.(math.LegacyDec)
	if l.LT(r) {
		return -1
	}
	if l.GT(r) {
		return 1
	}
	return 0
}

func (k hfKeyAsc) CalcScore(key interface{}) float64 {
	dec := key.(math.LegacyDec)
	f, _ := dec.Float64()
	return f
}

// riskBucket holds the accounts sitting at one health factor value
type riskBucket struct {
	accounts map[string]bool
}

// Watchlist is an in-memory index of accounts ordered by liquidation health
// factor. Lookups of the riskiest accounts are O(limit) off the front of the
// skip list; updates are O(log n).
type Watchlist struct {
	byHF    *skiplist.SkipList
	entries map[string]math.LegacyDec // accountID -> current HF key
	mu      sync.RWMutex
}

// WatchlistEntry is one account with its indexed health factor
type WatchlistEntry struct {
	AccountID    string
	HealthFactor math.LegacyDec
}

// NewWatchlist creates an empty watchlist
func NewWatchlist() *Watchlist {
	return &Watchlist{
		byHF:    skiplist.New(hfKeyAsc{}),
		entries: make(map[string]math.LegacyDec),
	}
}

// Update inserts or repositions an account - O(log n)
func (w *Watchlist) Update(accountID string, hf math.LegacyDec) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.removeLocked(accountID)

	elem := w.byHF.Get(hf)
	var bucket *riskBucket
	if elem != nil {
		bucket = elem.Value.(*riskBucket)
	} else {
		bucket = &riskBucket{accounts: make(map[string]bool)}
		w.byHF.Set(hf, bucket)
	}
	bucket.accounts[accountID] = true
	w.entries[accountID] = hf
}

// Remove drops an account from the index - O(log n)
func (w *Watchlist) Remove(accountID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(accountID)
}

func (w *Watchlist) removeLocked(accountID string) {
	hf, ok := w.entries[accountID]
	if !ok {
		return
	}
	delete(w.entries, accountID)

	elem := w.byHF.Get(hf)
	if elem == nil {
		return
	}
	bucket := elem.Value.(*riskBucket)
	delete(bucket.accounts, accountID)
	if len(bucket.accounts) == 0 {
		w.byHF.Remove(hf)
	}
}

// Riskiest returns up to limit accounts ordered by ascending health factor.
// Accounts below the given threshold come first by construction; pass a
// threshold of zero to disable filtering.
func (w *Watchlist) Riskiest(limit int, below math.LegacyDec) []WatchlistEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]WatchlistEntry, 0, limit)
	for elem := w.byHF.Front(); elem != nil && len(out) < limit; elem = elem.Next() {
		hf := elem.Key().(math.LegacyDec)
		if !below.IsZero() && hf.GTE(below) {
			break
		}
		bucket := elem.Value.(*riskBucket)
		for accountID := range bucket.accounts {
			if len(out) >= limit {
				break
			}
			out = append(out, WatchlistEntry{AccountID: accountID, HealthFactor: hf})
		}
	}
	return out
}

// Len returns the number of indexed accounts
func (w *Watchlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}
