package store

import (
	"github.com/google/uuid"

	"github.com/debtline/line-engine/internal/amount"
	"github.com/debtline/line-engine/internal/model"
)

// OpKind identifies a mutating collateral operation tracked by the store.
type OpKind string

const (
	OpEnableCollateral  OpKind = "enable_collateral"
	OpAddCollateral     OpKind = "add_collateral"
	OpReleaseCollateral OpKind = "release_collateral"
	OpAddSpigot         OpKind = "add_spigot"
	OpClaimRevenue      OpKind = "claim_revenue"
)

// OpStatus is the per-operation status slot. Pending while the underlying
// async call is in flight; Err holds the failure message after a
// rejection. No retries happen here — retry is a user-initiated
// re-invocation.
type OpStatus struct {
	ID      string `json:"id"` // request id of the in-flight invocation
	Pending bool   `json:"pending"`
	Err     string `json:"error,omitempty"`
}

// BeginOp marks an operation pending and returns its request id.
func (s *AggregateStore) BeginOp(kind OpKind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.ops[kind] = OpStatus{ID: id, Pending: true}
	return id
}

// RejectOp records a failure message in the status slot. Data maps are
// left unmodified.
func (s *AggregateStore) RejectOp(kind OpKind, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ops[kind]
	st.Pending = false
	st.Err = msg
	s.ops[kind] = st
}

// OpState returns the current status slot for an operation.
func (s *AggregateStore) OpState(kind OpKind) OpStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops[kind]
}

// clearOp marks an operation fulfilled. Caller holds the write lock.
func (s *AggregateStore) clearOp(kind OpKind) {
	s.ops[kind] = OpStatus{}
}

// FulfillEnableCollateral marks a token's escrow deposit enabled and
// re-derives the escrow aggregate. An unknown line or token creates the
// entry rather than failing. Idempotent.
func (s *AggregateStore) FulfillEnableCollateral(lineID string, token model.TokenInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, escrow := s.depositEntry(lineID, token)
	d.Enabled = true
	escrow.Deposits[token.Address] = d

	s.recomputeEscrow(lineID, escrow)
	s.clearOp(OpEnableCollateral)
	s.version++
}

// FulfillAddCollateral increases a token's escrow deposit by delta.
// Strictly additive: replaying the same fulfilled payload adds again,
// matching on-chain balance accumulation.
func (s *AggregateStore) FulfillAddCollateral(lineID string, token model.TokenInfo, delta amount.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, escrow := s.depositEntry(lineID, token)
	d.Amount = d.Amount.Add(delta)
	escrow.Deposits[token.Address] = d

	s.recomputeEscrow(lineID, escrow)
	s.clearOp(OpAddCollateral)
	s.version++
}

// FulfillReleaseCollateral decreases a token's escrow deposit by delta.
func (s *AggregateStore) FulfillReleaseCollateral(lineID string, token model.TokenInfo, delta amount.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, escrow := s.depositEntry(lineID, token)
	d.Amount = d.Amount.Sub(delta)
	if d.Amount.Sign() < 0 {
		d.Amount = amount.Zero(token.Decimals)
	}
	escrow.Deposits[token.Address] = d

	s.recomputeEscrow(lineID, escrow)
	s.clearOp(OpReleaseCollateral)
	s.version++
}

// FulfillAddSpigot attaches a revenue token to a line's spigot module,
// creating the module on first use.
func (s *AggregateStore) FulfillAddSpigot(lineID, spigotID string, token model.TokenInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collateral[lineID]
	if c.Spigot == nil {
		c.Spigot = &model.AggregatedSpigot{
			ID:             spigotID,
			Line:           lineID,
			RevenueValue:   amount.Zero(amount.UsdDecimals),
			RevenueSummary: make(model.RevenueSummaryMap),
		}
	}
	if _, ok := c.Spigot.RevenueSummary[token.Address]; !ok {
		c.Spigot.RevenueSummary[token.Address] = model.RevenueEntry{
			Token:  token,
			Amount: amount.Zero(amount.WadDecimals),
			Value:  amount.Zero(amount.UsdDecimals),
			Price:  amount.Zero(amount.PriceDecimals),
			Type:   model.CollateralRevenue,
		}
	}
	s.collateral[lineID] = c

	s.clearOp(OpAddSpigot)
	s.version++
}

// FulfillClaimRevenue reduces a token's claimable revenue by the claimed
// amount (18-decimal) and re-derives the spigot aggregate.
func (s *AggregateStore) FulfillClaimRevenue(lineID string, token model.TokenInfo, claimed amount.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collateral[lineID]
	if c.Spigot != nil {
		if entry, ok := c.Spigot.RevenueSummary[token.Address]; ok {
			entry.Amount = entry.Amount.Sub(claimed.Rescale(amount.WadDecimals))
			if entry.Amount.Sign() < 0 {
				entry.Amount = amount.Zero(amount.WadDecimals)
			}
			entry.Value = entry.Amount.MulPrice(s.prices.PriceOf(token.Address))
			c.Spigot.RevenueSummary[token.Address] = entry

			total := amount.Zero(amount.UsdDecimals)
			for _, e := range c.Spigot.RevenueSummary {
				total = total.Add(e.Value)
			}
			c.Spigot.RevenueValue = total
			s.collateral[lineID] = c
		}
	}

	s.clearOp(OpClaimRevenue)
	s.version++
}

// depositEntry returns the deposit entry for a token, creating the escrow
// module and entry if the merge target does not exist yet. Caller holds
// the write lock.
func (s *AggregateStore) depositEntry(lineID string, token model.TokenInfo) (model.EscrowDeposit, *model.AggregatedEscrow) {
	c := s.collateral[lineID]
	if c.Escrow == nil {
		c.Escrow = &model.AggregatedEscrow{
			Line:            lineID,
			CollateralValue: amount.Zero(amount.UsdDecimals),
			Deposits:        make(model.EscrowDepositMap),
		}
		s.collateral[lineID] = c
	}
	d, ok := c.Escrow.Deposits[token.Address]
	if !ok {
		d = model.EscrowDeposit{
			Token:  token,
			Amount: amount.Zero(token.Decimals),
			Value:  amount.Zero(amount.UsdDecimals),
			Type:   model.CollateralAsset,
		}
	}
	return d, c.Escrow
}

// recomputeEscrow re-derives collateral value and cratio from the current
// deposits and prices. Caller holds the write lock.
func (s *AggregateStore) recomputeEscrow(lineID string, escrow *model.AggregatedEscrow) {
	total := amount.Zero(amount.UsdDecimals)
	for addr, d := range escrow.Deposits {
		if !d.Enabled {
			d.Value = amount.Zero(amount.UsdDecimals)
			escrow.Deposits[addr] = d
			continue
		}
		d.Value = d.Amount.Rescale(amount.WadDecimals).MulPrice(s.prices.PriceOf(addr))
		escrow.Deposits[addr] = d
		total = total.Add(d.Value)
	}
	escrow.CollateralValue = total

	principal := amount.Zero(amount.UsdDecimals)
	if line, ok := s.lines[lineID]; ok {
		principal = line.Principal
	}
	escrow.CRatio = total.Ratio(principal)
}
