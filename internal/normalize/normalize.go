// Package normalize converts raw fragment responses into typed aggregate
// records with derived fields: price-weighted principal and deposit
// totals, collateral value, collateralization ratio, and revenue
// summaries.
//
// Every function here is pure and total: identical inputs always produce
// identical outputs, and absent or malformed inputs degrade to empty maps
// and zero amounts instead of errors. That determinism is what makes the
// selector layer's memoization sound.
package normalize

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/debtline/line-engine/internal/amount"
	"github.com/debtline/line-engine/internal/model"
	"github.com/debtline/line-engine/internal/price"
)

// CreditSummary is the line-level aggregate derived from all positions.
type CreditSummary struct {
	Principal           amount.Amount // USD, 24 decimals
	Deposit             amount.Amount // USD, 24 decimals
	TotalInterestRepaid amount.Amount // USD, 24 decimals
	HighestAPY          model.HighestAPY
}

// LineData is the full output of FormatSecuredLineData.
type LineData struct {
	Credit    CreditSummary
	Positions model.PositionMap
	Escrow    model.AggregatedEscrow
	Spigot    model.AggregatedSpigot
}

// creditAccumulator folds position fragments into the credit summary.
type creditAccumulator struct {
	principal           amount.Amount
	deposit             amount.Amount
	totalInterestRepaid amount.Amount
	highest             model.HighestAPY
	haveHighest         bool
}

// escrowAccumulator folds escrow deposit fragments.
type escrowAccumulator struct {
	collateralValue amount.Amount
	deposits        model.EscrowDepositMap
}

// FormatSecuredLineData joins the independently fetched fragments of one
// line into its derived aggregates. Missing fragment slices yield empty
// maps and zero totals; a token missing from the price map values to zero.
func FormatSecuredLineData(
	lineID, escrowID, spigotID string,
	positions []model.PositionFragment,
	deposits []model.EscrowDepositFragment,
	revenues []model.RevenueSummaryFragment,
	prices price.Map,
) LineData {
	lineID = model.Checksum(lineID)

	credit, positionMap := aggregatePositions(lineID, positions, prices)
	escrow := aggregateEscrow(lineID, escrowID, deposits, prices, credit.Principal)
	spigot := aggregateSpigot(lineID, spigotID, revenues)

	return LineData{
		Credit:    credit,
		Positions: positionMap,
		Escrow:    escrow,
		Spigot:    spigot,
	}
}

// aggregatePositions reduces position fragments into USD totals and the
// normalized position map, tracking the highest drawn rate. Ties keep the
// first occurrence: the comparison is strict >.
func aggregatePositions(lineID string, fragments []model.PositionFragment, prices price.Map) (CreditSummary, model.PositionMap) {
	acc := creditAccumulator{
		principal:           amount.Zero(amount.UsdDecimals),
		deposit:             amount.Zero(amount.UsdDecimals),
		totalInterestRepaid: amount.Zero(amount.UsdDecimals),
	}
	positionMap := make(model.PositionMap, len(fragments))

	for _, f := range fragments {
		p := FormatPosition(lineID, f)
		positionMap[p.ID] = p

		token := p.Token.Address
		acc.principal = acc.principal.Add(prices.ValueOf(token, p.Principal))
		acc.deposit = acc.deposit.Add(prices.ValueOf(token, p.Deposit))
		acc.totalInterestRepaid = acc.totalInterestRepaid.Add(prices.ValueOf(token, p.InterestRepaid))

		if !acc.haveHighest || p.DRate > acc.highest.Rate {
			acc.highest = model.HighestAPY{PositionID: p.ID, Token: token, Rate: p.DRate}
			acc.haveHighest = true
		}
	}

	return CreditSummary{
		Principal:           acc.principal,
		Deposit:             acc.deposit,
		TotalInterestRepaid: acc.totalInterestRepaid,
		HighestAPY:          acc.highest,
	}, positionMap
}

// FormatPosition normalizes one position fragment. Amounts stay in the
// position token's own decimals.
func FormatPosition(lineID string, f model.PositionFragment) model.CreditPosition {
	token := f.Token.Info()
	line := lineID
	if f.Line.ID != "" {
		line = model.Checksum(f.Line.ID)
	}
	return model.CreditPosition{
		ID:              f.ID,
		Line:            line,
		Lender:          model.Checksum(f.Lender.ID),
		Token:           token,
		Principal:       amount.ParseOrZero(f.Principal, token.Decimals),
		Deposit:         amount.ParseOrZero(f.Deposit, token.Decimals),
		InterestAccrued: amount.ParseOrZero(f.InterestAccrued, token.Decimals),
		InterestRepaid:  amount.ParseOrZero(f.InterestRepaid, token.Decimals),
		DRate:           parseRate(f.DRate),
		FRate:           parseRate(f.FRate),
		Status:          ParsePositionStatus(f.Status),
	}
}

// aggregateEscrow builds the deposit map and sums enabled deposits into
// the collateral value. Disabled deposits stay in the map with a zero
// value and contribute nothing.
func aggregateEscrow(lineID, escrowID string, fragments []model.EscrowDepositFragment, prices price.Map, principal amount.Amount) model.AggregatedEscrow {
	acc := escrowAccumulator{
		collateralValue: amount.Zero(amount.UsdDecimals),
		deposits:        make(model.EscrowDepositMap, len(fragments)),
	}

	for _, f := range fragments {
		token := f.Token.Info()
		raw := amount.ParseOrZero(f.Amount, token.Decimals)

		d := model.EscrowDeposit{
			Token:   token,
			Amount:  raw,
			Value:   amount.Zero(amount.UsdDecimals),
			Enabled: f.Enabled,
			Type:    model.CollateralAsset,
		}
		if f.Enabled {
			d.Value = prices.ValueOf(token.Address, raw)
			acc.collateralValue = acc.collateralValue.Add(d.Value)
		}
		acc.deposits[token.Address] = d
	}

	return model.AggregatedEscrow{
		ID:              escrowID,
		Line:            lineID,
		CollateralValue: acc.collateralValue,
		// Zero principal yields a zero ratio. This conflates "no debt"
		// with "0% collateralized"; changing it is a product decision.
		CRatio:   acc.collateralValue.Ratio(principal),
		Deposits: acc.deposits,
	}
}

// aggregateSpigot reduces revenue summary fragments into the revenue map,
// tagging each entry as revenue collateral and deriving a synthetic
// average price for display.
func aggregateSpigot(lineID, spigotID string, fragments []model.RevenueSummaryFragment) model.AggregatedSpigot {
	summary := make(model.RevenueSummaryMap, len(fragments))
	revenueValue := amount.Zero(amount.UsdDecimals)

	for _, f := range fragments {
		token := f.Token.Info()
		volume := amount.ParseOrZero(f.TotalVolume, token.Decimals).Rescale(amount.WadDecimals)
		value := amount.ParseOrZero(f.TotalVolumeUsd, amount.WadDecimals).Rescale(amount.UsdDecimals)

		summary[token.Address] = model.RevenueEntry{
			Token:  token,
			Amount: volume,
			Value:  value,
			Price:  syntheticPrice(value, volume),
			Type:   model.CollateralRevenue,
		}
		revenueValue = revenueValue.Add(value)
	}

	return model.AggregatedSpigot{
		ID:             spigotID,
		Line:           lineID,
		RevenueValue:   revenueValue,
		RevenueSummary: summary,
	}
}

// FormatCollateralRevenue re-derives revenue amounts from per-token
// reserve balances. This is a partial merge: only tokens present in
// reserves are touched, and a reserve for an unknown token creates its
// entry. The spigot's revenue value is recomputed from the merged map.
func FormatCollateralRevenue(spigot model.AggregatedSpigot, reserves model.ReservesMap, prices price.Map) model.AggregatedSpigot {
	merged := make(model.RevenueSummaryMap, len(spigot.RevenueSummary))
	for k, v := range spigot.RevenueSummary {
		merged[k] = v
	}

	for addr, r := range reserves {
		claimable := r.OwnerTokens.Add(r.UnusedTokens).Rescale(amount.WadDecimals)
		value := claimable.MulPrice(prices.PriceOf(addr))

		entry, ok := merged[addr]
		if !ok {
			entry = model.RevenueEntry{Token: r.Token, Type: model.CollateralRevenue}
		}
		entry.Amount = claimable
		entry.Value = value
		entry.Price = syntheticPrice(value, claimable)
		merged[addr] = entry
	}

	revenueValue := amount.Zero(amount.UsdDecimals)
	for _, e := range merged {
		revenueValue = revenueValue.Add(e.Value)
	}

	out := spigot
	out.RevenueSummary = merged
	out.RevenueValue = revenueValue
	return out
}

// FormatSecuredLine assembles the stored line record from its fragment
// and the derived credit summary.
func FormatSecuredLine(f model.LineFragment, escrowID, spigotID string, credit CreditSummary) model.SecuredLine {
	return model.SecuredLine{
		ID:                  model.Checksum(f.ID),
		Borrower:            model.Checksum(f.Borrower.ID),
		Arbiter:             model.Checksum(f.Arbiter.ID),
		Status:              ParseLineStatus(f.Status),
		Start:               f.Start,
		End:                 f.End,
		Principal:           credit.Principal,
		Deposit:             credit.Deposit,
		TotalInterestRepaid: credit.TotalInterestRepaid,
		DefaultSplit:        f.DefaultSplit,
		EscrowID:            escrowID,
		SpigotID:            spigotID,
		HighestAPY:          credit.HighestAPY,
	}
}

// FormatEvent normalizes one event fragment, attaching a USD valuation.
func FormatEvent(lineID string, f model.EventFragment, prices price.Map) model.LineEvent {
	token := f.Token.Info()
	raw := amount.ParseOrZero(f.Amount, token.Decimals)
	value := amount.ParseOrZero(f.Value, amount.UsdDecimals)
	if value.IsZero() {
		value = prices.ValueOf(token.Address, raw)
	}
	return model.LineEvent{
		ID:        f.ID,
		Line:      model.Checksum(lineID),
		Type:      f.Type,
		Token:     token,
		Amount:    raw,
		Value:     value,
		Timestamp: f.Timestamp,
	}
}

// ParseLineStatus maps a fragment status string onto the line status
// enum, defaulting to UNINITIALIZED.
func ParseLineStatus(s string) model.LineStatus {
	switch model.LineStatus(strings.ToUpper(s)) {
	case model.LineActive:
		return model.LineActive
	case model.LineLiquidatable:
		return model.LineLiquidatable
	case model.LineRepaid:
		return model.LineRepaid
	case model.LineInsolvent:
		return model.LineInsolvent
	default:
		return model.LineUninitialized
	}
}

// ParsePositionStatus maps a fragment status string onto the position
// status enum, defaulting to PROPOSED.
func ParsePositionStatus(s string) model.PositionStatus {
	switch model.PositionStatus(strings.ToUpper(s)) {
	case model.PositionOpen:
		return model.PositionOpen
	case model.PositionClosed:
		return model.PositionClosed
	case model.PositionRepaid:
		return model.PositionRepaid
	default:
		return model.PositionProposed
	}
}

// parseRate parses a basis-point rate, degrading to zero.
func parseRate(s string) int64 {
	if s == "" {
		return 0
	}
	r, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return r
}

// syntheticPrice derives an average 6-decimal USD price from a 24-decimal
// value and an 18-decimal amount. Zero amount yields a zero price.
func syntheticPrice(value, amt amount.Amount) amount.Amount {
	if amt.IsZero() {
		return amount.Zero(amount.PriceDecimals)
	}
	q := new(big.Int).Quo(value.Value(), amt.Value())
	return amount.New(q, amount.PriceDecimals)
}
