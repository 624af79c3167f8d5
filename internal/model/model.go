// Package model defines the core domain types shared across the line
// engine: secured lines of credit, lender positions, escrow and spigot
// collateral aggregates, and token views. All monetary values use the
// fixed-point amount.Amount type — never float64 for money.
//
// Map keys that identify tokens or accounts are EIP-55 checksummed
// addresses (see Checksum).
package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/debtline/line-engine/internal/amount"
)

// Checksum normalizes a hex address to its EIP-55 checksummed form.
// All store and aggregate map keys go through this.
func Checksum(addr string) string {
	return common.HexToAddress(addr).Hex()
}

// LineStatus is the lifecycle status of a secured line.
type LineStatus string

const (
	LineUninitialized LineStatus = "UNINITIALIZED"
	LineActive        LineStatus = "ACTIVE"
	LineLiquidatable  LineStatus = "LIQUIDATABLE"
	LineRepaid        LineStatus = "REPAID"
	LineInsolvent     LineStatus = "INSOLVENT"
)

// PositionStatus is the lifecycle status of a single credit position.
type PositionStatus string

const (
	PositionProposed PositionStatus = "PROPOSED"
	PositionOpen     PositionStatus = "OPEN"
	PositionClosed   PositionStatus = "CLOSED"
	PositionRepaid   PositionStatus = "REPAID"
)

// PositionRole is a wallet's relationship to a line.
type PositionRole string

const (
	RoleBorrower PositionRole = "BORROWER"
	RoleLender   PositionRole = "LENDER"
	RoleArbiter  PositionRole = "ARBITER"
)

// CollateralType discriminates asset collateral (escrow deposits) from
// revenue collateral (spigot income).
type CollateralType string

const (
	CollateralAsset   CollateralType = "asset"
	CollateralRevenue CollateralType = "revenue"
)

// TokenInfo is the minimal token descriptor embedded in positions,
// deposits, and revenue entries.
type TokenInfo struct {
	Address  string `json:"address"` // checksummed
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// TokenView is the presentation-ready token record kept in the token
// maps. Derived, never the source of truth for balances.
type TokenView struct {
	Address     string                   `json:"address"` // checksummed
	Symbol      string                   `json:"symbol"`
	Decimals    int32                    `json:"decimals"`
	Balance     amount.Amount            `json:"balance"`
	BalanceUsdc amount.Amount            `json:"balance_usdc"`
	PriceUsdc   amount.Amount            `json:"price_usdc"`
	Allowances  map[string]amount.Amount `json:"allowances,omitempty"` // spender → allowance
}

// HighestAPY identifies the position carrying the highest drawn rate on a
// line: position id, token address, and the rate in basis points.
type HighestAPY struct {
	PositionID string `json:"position_id"`
	Token      string `json:"token"`
	Rate       int64  `json:"rate"` // basis points
}

// SecuredLine is the aggregate root: one secured line of credit contract.
// Created on first fetch, merged on every subsequent fetch of the same id,
// never deleted within a session.
type SecuredLine struct {
	ID                  string        `json:"id"` // contract address, checksummed
	Borrower            string        `json:"borrower"`
	Arbiter             string        `json:"arbiter"`
	Status              LineStatus    `json:"status"`
	Start               int64         `json:"start"` // unix seconds
	End                 int64         `json:"end"`
	Principal           amount.Amount `json:"principal"` // USD, 24 decimals
	Deposit             amount.Amount `json:"deposit"`   // USD, 24 decimals
	TotalInterestRepaid amount.Amount `json:"total_interest_repaid"`
	DefaultSplit        int           `json:"default_split"` // revenue split %, 0–100
	EscrowID            string        `json:"escrow_id"`
	SpigotID            string        `json:"spigot_id"`
	HighestAPY          HighestAPY    `json:"highest_apy"`
}

// CreditPosition is a single lender's stake against a line. Amounts are
// in the position token's own decimals.
type CreditPosition struct {
	ID              string         `json:"id"`   // position key, unique across lines
	Line            string         `json:"line"` // back-reference, not ownership
	Lender          string         `json:"lender"`
	Token           TokenInfo      `json:"token"`
	Principal       amount.Amount  `json:"principal"`
	Deposit         amount.Amount  `json:"deposit"`
	InterestAccrued amount.Amount  `json:"interest_accrued"`
	InterestRepaid  amount.Amount  `json:"interest_repaid"`
	DRate           int64          `json:"drate"` // drawn rate, basis points
	FRate           int64          `json:"frate"` // facility rate, basis points
	Status          PositionStatus `json:"status"`
}

// PositionMap keys credit positions by position id.
type PositionMap map[string]CreditPosition

// EscrowDeposit is one token's deposit inside an escrow module.
type EscrowDeposit struct {
	Token   TokenInfo      `json:"token"`
	Amount  amount.Amount  `json:"amount"` // token decimals
	Value   amount.Amount  `json:"value"`  // USD, 24 decimals
	Enabled bool           `json:"enabled"`
	Type    CollateralType `json:"type"` // always "asset"
}

// EscrowDepositMap keys escrow deposits by checksummed token address.
type EscrowDepositMap map[string]EscrowDeposit

// AggregatedEscrow is the escrow module's derived view: per-token deposits
// and the USD collateral value of the enabled ones.
type AggregatedEscrow struct {
	ID              string           `json:"id"`
	Line            string           `json:"line"`
	MinCRatio       decimal.Decimal  `json:"min_cratio"`
	CRatio          decimal.Decimal  `json:"cratio"`
	CollateralValue amount.Amount    `json:"collateral_value"` // USD, 24 decimals
	Deposits        EscrowDepositMap `json:"deposits"`
}

// Clone returns a deep copy, including the deposit map. Nil in, nil out.
func (e *AggregatedEscrow) Clone() *AggregatedEscrow {
	if e == nil {
		return nil
	}
	out := *e
	out.Deposits = make(EscrowDepositMap, len(e.Deposits))
	for k, v := range e.Deposits {
		out.Deposits[k] = v
	}
	return &out
}

// RevenueEntry is one token's aggregate of claimable/claimed revenue
// routed through a spigot.
type RevenueEntry struct {
	Token  TokenInfo      `json:"token"`
	Amount amount.Amount  `json:"amount"` // 18 decimals
	Value  amount.Amount  `json:"value"`  // USD, 24 decimals
	Price  amount.Amount  `json:"price"`  // synthetic average, 6 decimals
	Type   CollateralType `json:"type"`   // always "revenue"
}

// RevenueSummaryMap keys revenue entries by checksummed token address.
type RevenueSummaryMap map[string]RevenueEntry

// AggregatedSpigot is the spigot module's derived view.
type AggregatedSpigot struct {
	ID             string            `json:"id"`
	Line           string            `json:"line"`
	RevenueValue   amount.Amount     `json:"revenue_value"` // USD, 24 decimals
	RevenueSummary RevenueSummaryMap `json:"revenue_summary"`
}

// Clone returns a deep copy, including the revenue map. Nil in, nil out.
func (s *AggregatedSpigot) Clone() *AggregatedSpigot {
	if s == nil {
		return nil
	}
	out := *s
	out.RevenueSummary = make(RevenueSummaryMap, len(s.RevenueSummary))
	for k, v := range s.RevenueSummary {
		out.RevenueSummary[k] = v
	}
	return &out
}

// LineCollateral pairs the two collateral modules of a line.
type LineCollateral struct {
	Escrow *AggregatedEscrow `json:"escrow,omitempty"`
	Spigot *AggregatedSpigot `json:"spigot,omitempty"`
}

// ReserveEntry tracks a spigot's per-token reserve balances, refreshed
// independently of escrow data via the tradeable query.
type ReserveEntry struct {
	Token          TokenInfo     `json:"token"`
	OwnerTokens    amount.Amount `json:"owner_tokens"`    // token decimals
	OperatorTokens amount.Amount `json:"operator_tokens"` // token decimals
	UnusedTokens   amount.Amount `json:"unused_tokens"`   // token decimals
}

// ReservesMap keys reserve entries by checksummed token address.
type ReservesMap map[string]ReserveEntry

// LineEvent is a collateral or credit event observed on a line.
type LineEvent struct {
	ID        string        `json:"id"`
	Line      string        `json:"line"`
	Type      string        `json:"type"`
	Token     TokenInfo     `json:"token"`
	Amount    amount.Amount `json:"amount"` // token decimals
	Value     amount.Amount `json:"value"`  // USD, 24 decimals
	Timestamp int64         `json:"timestamp"`
}

// SecuredLineWithEvents is the per-screen projection of a line joined
// with its positions, collateral modules, and events.
type SecuredLineWithEvents struct {
	SecuredLine
	Positions PositionMap       `json:"positions"`
	Escrow    *AggregatedEscrow `json:"escrow,omitempty"`
	Spigot    *AggregatedSpigot `json:"spigot,omitempty"`
	Events    []LineEvent       `json:"events"`
}

// UserPortfolioIDs are the id-lists tying a user to lines and positions,
// as returned by the portfolio query.
type UserPortfolioIDs struct {
	BorrowerLineOfCredits []string `json:"borrower_line_of_credits"`
	LenderPositions       []string `json:"lender_positions"`
	ArbiterLineOfCredits  []string `json:"arbiter_line_of_credits"`
}

// UserPortfolio is a user's full portfolio projection.
type UserPortfolio struct {
	Address         string                  `json:"address"`
	BorrowerLines   []SecuredLineWithEvents `json:"borrower_lines"`
	ArbiterLines    []SecuredLineWithEvents `json:"arbiter_lines"`
	LenderPositions []CreditPosition        `json:"lender_positions"`
}

// UserPositionMetadata is the ephemeral role projection for a wallet on a
// line. Never persisted; recomputed on every read.
type UserPositionMetadata struct {
	Role      PositionRole  `json:"role"`
	Amount    amount.Amount `json:"amount"`
	Available amount.Amount `json:"available"`
}
