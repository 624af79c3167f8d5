// Package store holds the aggregate store: the normalized, keyed maps
// that are the single source of truth for every derived view. Merges are
// serialized behind one mutex; reads copy out, so selectors can run
// concurrently without coordination.
//
// Merge semantics are explicit per map:
//   - lines, positions, collateral, tokens, portfolios: entity-level
//     last-write-wins (a fulfilled fetch replaces the whole record).
//   - reserves, events, prices: deep per-key merge — independent async
//     calls populate one token or event at a time, and a wholesale
//     replace would erase previously fetched entries.
//
// Entries are created on first merge and never deleted within a session;
// Clear resets everything (session reset / network switch). Merges apply
// in resolution order, not initiation order — last write wins with no
// sequencing, by design.
package store

import (
	"sort"
	"sync"

	"github.com/debtline/line-engine/internal/model"
	"github.com/debtline/line-engine/internal/price"
)

// AggregateStore owns the normalized maps. The zero value is not usable;
// call New.
type AggregateStore struct {
	mu      sync.RWMutex
	version uint64

	lines      map[string]model.SecuredLine
	positions  map[string]model.CreditPosition
	collateral map[string]model.LineCollateral
	events     map[string]map[string]model.LineEvent
	reserves   map[string]model.ReservesMap
	tokens     map[string]model.TokenView
	userTokens map[string]model.TokenView
	portfolios map[string]model.UserPortfolioIDs
	prices     price.Map
	ops        map[OpKind]OpStatus
}

// New creates an empty aggregate store.
func New() *AggregateStore {
	s := &AggregateStore{}
	s.reset()
	return s
}

func (s *AggregateStore) reset() {
	s.lines = make(map[string]model.SecuredLine)
	s.positions = make(map[string]model.CreditPosition)
	s.collateral = make(map[string]model.LineCollateral)
	s.events = make(map[string]map[string]model.LineEvent)
	s.reserves = make(map[string]model.ReservesMap)
	s.tokens = make(map[string]model.TokenView)
	s.userTokens = make(map[string]model.TokenView)
	s.portfolios = make(map[string]model.UserPortfolioIDs)
	s.prices = make(price.Map)
	s.ops = make(map[OpKind]OpStatus)
}

// Clear wipes every map. Used on session reset or network switch.
func (s *AggregateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.version++
}

// Version returns the monotonic merge counter. Selectors key memoized
// results on it; it carries no ordering guarantee beyond "something
// changed".
func (s *AggregateStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// --- Merge reducers ---

// MergeLine upserts a line record. Last write wins.
func (s *AggregateStore) MergeLine(line model.SecuredLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line.ID] = line
	s.version++
}

// MergePositions upserts positions by id, leaving positions absent from
// the payload untouched.
func (s *AggregateStore) MergePositions(positions model.PositionMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range positions {
		s.positions[id] = p
	}
	s.version++
}

// MergeCollateral upserts a line's collateral modules. A nil escrow or
// spigot leaves the existing module in place, so escrow and spigot data
// can arrive from independent fetches. Modules are deep-copied on the way
// in; the store never shares maps with the caller.
func (s *AggregateStore) MergeCollateral(lineID string, escrow *model.AggregatedEscrow, spigot *model.AggregatedSpigot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collateral[lineID]
	if escrow != nil {
		c.Escrow = escrow.Clone()
	}
	if spigot != nil {
		c.Spigot = spigot.Clone()
	}
	s.collateral[lineID] = c
	s.version++
}

// MergeEvents upserts events for a line by event id.
func (s *AggregateStore) MergeEvents(lineID string, events []model.LineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.events[lineID]
	if m == nil {
		m = make(map[string]model.LineEvent, len(events))
		s.events[lineID] = m
	}
	for _, e := range events {
		m[e.ID] = e
	}
	s.version++
}

// MergeReserves deep-merges per-token reserve entries for a line.
// Merging token A must never remove or alter a previously merged entry
// for token B.
func (s *AggregateStore) MergeReserves(lineID string, reserves model.ReservesMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.reserves[lineID]
	if m == nil {
		m = make(model.ReservesMap, len(reserves))
		s.reserves[lineID] = m
	}
	for token, r := range reserves {
		m[token] = r
	}
	s.version++
}

// MergeTokens upserts supported-token records by address.
func (s *AggregateStore) MergeTokens(tokens []model.TokenView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		s.tokens[t.Address] = t
	}
	s.version++
}

// MergeUserTokens upserts the connected wallet's token records.
func (s *AggregateStore) MergeUserTokens(tokens []model.TokenView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		s.userTokens[t.Address] = t
	}
	s.version++
}

// MergePrices overlays price entries per token.
func (s *AggregateStore) MergePrices(p price.Map) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, v := range p {
		s.prices[addr] = v
	}
	s.version++
}

// MergePortfolio upserts a user's line/position id-lists.
func (s *AggregateStore) MergePortfolio(address string, ids model.UserPortfolioIDs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[model.Checksum(address)] = ids
	s.version++
}

// --- Reads (copy-out) ---

// Line returns a line by checksummed id.
func (s *AggregateStore) Line(id string) (model.SecuredLine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lines[id]
	return l, ok
}

// Position returns a position by id.
func (s *AggregateStore) Position(id string) (model.CreditPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	return p, ok
}

// PositionsForLine returns the positions whose back-reference matches the
// line id.
func (s *AggregateStore) PositionsForLine(lineID string) model.PositionMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(model.PositionMap)
	for id, p := range s.positions {
		if p.Line == lineID {
			out[id] = p
		}
	}
	return out
}

// Collateral returns a deep copy of a line's collateral modules. The
// fulfill reducers mutate the stored modules in place under the write
// lock, so returning the internal pointers would let a held snapshot race
// with (and silently change under) a concurrent fulfill.
func (s *AggregateStore) Collateral(lineID string) (model.LineCollateral, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collateral[lineID]
	return model.LineCollateral{Escrow: c.Escrow.Clone(), Spigot: c.Spigot.Clone()}, ok
}

// EventsForLine returns a line's events ordered by timestamp, then id.
func (s *AggregateStore) EventsForLine(lineID string) []model.LineEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.events[lineID]
	out := make([]model.LineEvent, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ReservesForLine returns a copy of a line's reserve map.
func (s *AggregateStore) ReservesForLine(lineID string) model.ReservesMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(model.ReservesMap, len(s.reserves[lineID]))
	for token, r := range s.reserves[lineID] {
		out[token] = r
	}
	return out
}

// Tokens returns all supported-token records.
func (s *AggregateStore) Tokens() []model.TokenView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TokenView, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	return out
}

// UserTokens returns the connected wallet's token records.
func (s *AggregateStore) UserTokens() []model.TokenView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TokenView, 0, len(s.userTokens))
	for _, t := range s.userTokens {
		out = append(out, t)
	}
	return out
}

// Portfolio returns a user's id-lists.
func (s *AggregateStore) Portfolio(address string) (model.UserPortfolioIDs, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.portfolios[model.Checksum(address)]
	return ids, ok
}

// LineCount returns the number of lines held in the store.
func (s *AggregateStore) LineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Prices returns a copy of the current price map.
func (s *AggregateStore) Prices() price.Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(price.Map, len(s.prices))
	for addr, p := range s.prices {
		out[addr] = p
	}
	return out
}
