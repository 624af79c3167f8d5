// Package selector composes per-screen projections from the aggregate
// store's maps. Every composition is pure over the store's current state
// and memoized by the full argument tuple plus the store version, so
// repeated reads of an unchanged store return the identical result
// without recomputation.
package selector

import (
	"sort"
	"sync"

	"github.com/debtline/line-engine/internal/metrics"
	"github.com/debtline/line-engine/internal/model"
	"github.com/debtline/line-engine/internal/store"
)

// Selector builds projections over one aggregate store.
type Selector struct {
	store *store.AggregateStore

	mu   sync.Mutex
	memo map[memoKey]memoEntry
}

// memoKey captures the complete call signature of a selector invocation.
// Keying on the full tuple is what makes alternating argument values safe:
// a cached result for one tuple can never be served for another.
type memoKey struct {
	selector string
	arg      string
	network  model.Network
	allowEth bool
}

type memoEntry struct {
	version uint64
	value   any
}

// New creates a selector layer over the given store.
func New(st *store.AggregateStore) *Selector {
	return &Selector{
		store: st,
		memo:  make(map[memoKey]memoEntry),
	}
}

// lookup returns the memoized value for key if the store has not changed
// since it was computed.
func (s *Selector) lookup(key memoKey, version uint64) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.memo[key]
	if !ok || e.version != version {
		metrics.SelectorCacheMisses.WithLabelValues(key.selector).Inc()
		return nil, false
	}
	metrics.SelectorCacheHits.WithLabelValues(key.selector).Inc()
	return e.value, true
}

func (s *Selector) remember(key memoKey, version uint64, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memo[key] = memoEntry{version: version, value: value}
}

// SelectedLinePage joins a line with its positions, collateral modules,
// and events. Returns nil if the base line record is absent, regardless
// of whether the other slices are populated.
func (s *Selector) SelectedLinePage(lineID string) *model.SecuredLineWithEvents {
	lineID = model.Checksum(lineID)
	key := memoKey{selector: "line_page", arg: lineID}
	version := s.store.Version()

	if v, ok := s.lookup(key, version); ok {
		return v.(*model.SecuredLineWithEvents)
	}

	page := s.composeLinePage(lineID)
	s.remember(key, version, page)
	return page
}

// composeLinePage is the uncached structural join. UserPortfolio reuses
// it per line so single-line and portfolio views cannot drift apart.
func (s *Selector) composeLinePage(lineID string) *model.SecuredLineWithEvents {
	line, ok := s.store.Line(lineID)
	if !ok {
		return nil
	}

	page := &model.SecuredLineWithEvents{
		SecuredLine: line,
		Positions:   s.store.PositionsForLine(lineID),
		Events:      s.store.EventsForLine(lineID),
	}
	if c, ok := s.store.Collateral(lineID); ok {
		page.Escrow = c.Escrow
		page.Spigot = c.Spigot
	}
	return page
}

// UserPortfolio joins a user's borrower/lender/arbiter id-lists against
// the global maps. Unknown ids are skipped silently — an id-list can
// reference lines that have not been fetched yet.
func (s *Selector) UserPortfolio(address string) *model.UserPortfolio {
	address = model.Checksum(address)
	key := memoKey{selector: "user_portfolio", arg: address}
	version := s.store.Version()

	if v, ok := s.lookup(key, version); ok {
		return v.(*model.UserPortfolio)
	}

	portfolio := &model.UserPortfolio{
		Address:         address,
		BorrowerLines:   []model.SecuredLineWithEvents{},
		ArbiterLines:    []model.SecuredLineWithEvents{},
		LenderPositions: []model.CreditPosition{},
	}

	if ids, ok := s.store.Portfolio(address); ok {
		for _, id := range ids.BorrowerLineOfCredits {
			if page := s.composeLinePage(model.Checksum(id)); page != nil {
				portfolio.BorrowerLines = append(portfolio.BorrowerLines, *page)
			}
		}
		for _, id := range ids.ArbiterLineOfCredits {
			if page := s.composeLinePage(model.Checksum(id)); page != nil {
				portfolio.ArbiterLines = append(portfolio.ArbiterLines, *page)
			}
		}
		for _, id := range ids.LenderPositions {
			if p, ok := s.store.Position(id); ok {
				portfolio.LenderPositions = append(portfolio.LenderPositions, p)
			}
		}
	}

	sort.Slice(portfolio.LenderPositions, func(i, j int) bool {
		return portfolio.LenderPositions[i].ID < portfolio.LenderPositions[j].ID
	})

	s.remember(key, version, portfolio)
	return portfolio
}

// DepositTokenOptions lists the tokens eligible as deposit collateral.
// Test networks serve a fixed static list, bypassing real token data.
// Production networks list the configured main tokens first, then the
// subgraph-discovered supported tokens, each group sorted by symbol.
// ETH is prepended only when the caller allows it.
//
// Callers get their own slice; the memoized one stays canonical so a
// caller mutation cannot corrupt later hits at the same version.
func (s *Selector) DepositTokenOptions(network model.Network, allowEth bool) []model.TokenView {
	key := memoKey{selector: "deposit_token_options", network: network, allowEth: allowEth}
	version := s.store.Version()

	if v, ok := s.lookup(key, version); ok {
		return cloneOptions(v.([]model.TokenView))
	}

	var options []model.TokenView
	if allowEth {
		options = append(options, model.EthToken)
	}

	if network.IsTestnet() {
		options = append(options, model.TestnetDepositTokens...)
		s.remember(key, version, options)
		return cloneOptions(options)
	}

	main := make([]model.TokenView, len(model.MainDepositTokens))
	copy(main, model.MainDepositTokens)
	sort.Slice(main, func(i, j int) bool { return main[i].Symbol < main[j].Symbol })

	mainAddrs := make(map[string]bool, len(main))
	for _, t := range main {
		mainAddrs[t.Address] = true
	}

	var discovered []model.TokenView
	for _, t := range s.store.Tokens() {
		if !mainAddrs[t.Address] && t.Address != model.EthAddress {
			discovered = append(discovered, t)
		}
	}
	sort.Slice(discovered, func(i, j int) bool { return discovered[i].Symbol < discovered[j].Symbol })

	options = append(options, main...)
	options = append(options, discovered...)

	s.remember(key, version, options)
	return cloneOptions(options)
}

func cloneOptions(options []model.TokenView) []model.TokenView {
	out := make([]model.TokenView, len(options))
	copy(out, options)
	return out
}
