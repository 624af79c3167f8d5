package model

// Fragment shapes are the denormalized, partial records returned by the
// external data-fetching services (subgraph-style query results). They are
// string-typed on the wire; normalization parses them into typed
// aggregates and degrades malformed fields to zero values.

// IDRef wraps a nested entity reference carrying only an id.
type IDRef struct {
	ID string `json:"id"`
}

// TokenFragment is the nested token shape inside other fragments.
type TokenFragment struct {
	ID       string `json:"id"` // token address
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// Info converts the fragment to a TokenInfo with a checksummed address.
func (t TokenFragment) Info() TokenInfo {
	return TokenInfo{
		Address:  Checksum(t.ID),
		Symbol:   t.Symbol,
		Decimals: t.Decimals,
	}
}

// LineFragment is the line metadata record.
type LineFragment struct {
	ID           string `json:"id"`
	Start        int64  `json:"start"`
	End          int64  `json:"end"`
	Borrower     IDRef  `json:"borrower"`
	Arbiter      IDRef  `json:"arbiter"`
	DefaultSplit int    `json:"defaultSplit"`
	Status       string `json:"status"`
}

// PositionFragment is a per-lender position record.
type PositionFragment struct {
	ID              string        `json:"id"`
	Lender          IDRef         `json:"lender"`
	Line            IDRef         `json:"line"`
	Principal       string        `json:"principal"`
	Deposit         string        `json:"deposit"`
	InterestAccrued string        `json:"interestAccrued"`
	InterestRepaid  string        `json:"interestRepaid"`
	DRate           string        `json:"dRate"`
	FRate           string        `json:"fRate"`
	Status          string        `json:"status"`
	Token           TokenFragment `json:"token"`
}

// EscrowDepositFragment is a per-token escrow deposit record.
type EscrowDepositFragment struct {
	Enabled bool          `json:"enabled"`
	Amount  string        `json:"amount"`
	Token   TokenFragment `json:"token"`
}

// RevenueSummaryFragment is a per-token revenue aggregate from the
// tradeable query. Volumes are raw token units; USD volume is 18-decimal.
type RevenueSummaryFragment struct {
	Token             TokenFragment `json:"token"`
	TotalVolume       string        `json:"totalVolume"`
	TotalVolumeUsd    string        `json:"totalVolumeUsd"`
	TimeOfFirstIncome int64         `json:"timeOfFirstIncome"`
	TimeOfLastIncome  int64         `json:"timeOfLastIncome"`
}

// ReserveFragment is a spigot's per-token reserve balances.
type ReserveFragment struct {
	Token          TokenFragment `json:"token"`
	OwnerTokens    string        `json:"ownerTokens"`
	OperatorTokens string        `json:"operatorTokens"`
	UnusedTokens   string        `json:"unusedTokens"`
}

// EventFragment is a collateral/credit event record.
type EventFragment struct {
	ID        string        `json:"id"`
	Type      string        `json:"__typename"`
	Amount    string        `json:"amount"`
	Value     string        `json:"value"`
	Token     TokenFragment `json:"token"`
	Timestamp int64         `json:"timestamp"`
}
