package selector

import (
	"testing"

	"github.com/debtline/line-engine/internal/amount"
	"github.com/debtline/line-engine/internal/model"
	"github.com/debtline/line-engine/internal/store"
)

const (
	lineID   = "0x1111111111111111111111111111111111111111"
	userAddr = "0xaa00000000000000000000000000000000000001"
)

func seed(t *testing.T) (*store.AggregateStore, *Selector) {
	t.Helper()
	st := store.New()
	st.MergeLine(model.SecuredLine{
		ID:        model.Checksum(lineID),
		Borrower:  model.Checksum(userAddr),
		Status:    model.LineActive,
		Principal: amount.ParseOrZero("1000000000000000000000000", amount.UsdDecimals),
	})
	st.MergePositions(model.PositionMap{
		"p1": {ID: "p1", Line: model.Checksum(lineID), Status: model.PositionOpen},
	})
	st.MergeEvents(model.Checksum(lineID), []model.LineEvent{
		{ID: "e1", Line: model.Checksum(lineID), Timestamp: 100},
	})
	return st, New(st)
}

func TestSelectedLinePage_Joins(t *testing.T) {
	_, sel := seed(t)

	page := sel.SelectedLinePage(lineID)
	if page == nil {
		t.Fatal("expected a page for a known line")
	}
	if len(page.Positions) != 1 || len(page.Events) != 1 {
		t.Error("page must join positions and events")
	}
	if page.Status != model.LineActive {
		t.Errorf("expected line fields embedded, got %s", page.Status)
	}
}

func TestSelectedLinePage_AbsentLineIsNil(t *testing.T) {
	st := store.New()
	sel := New(st)

	// Positions exist but the base line record does not.
	st.MergePositions(model.PositionMap{
		"p1": {ID: "p1", Line: model.Checksum(lineID)},
	})

	if page := sel.SelectedLinePage(lineID); page != nil {
		t.Error("absent base line must yield nil regardless of other slices")
	}
}

func TestSelectedLinePage_MemoizedUntilStoreChanges(t *testing.T) {
	st, sel := seed(t)

	a := sel.SelectedLinePage(lineID)
	b := sel.SelectedLinePage(lineID)
	if a != b {
		t.Error("unchanged store must return the identical cached projection")
	}

	st.MergeEvents(model.Checksum(lineID), []model.LineEvent{
		{ID: "e2", Line: model.Checksum(lineID), Timestamp: 200},
	})
	c := sel.SelectedLinePage(lineID)
	if c == a {
		t.Error("a merge must invalidate the memoized projection")
	}
	if len(c.Events) != 2 {
		t.Error("recomputed projection must see the new event")
	}
}

func TestUserPortfolio_JoinsIDLists(t *testing.T) {
	st, sel := seed(t)
	st.MergePortfolio(userAddr, model.UserPortfolioIDs{
		BorrowerLineOfCredits: []string{lineID},
		LenderPositions:       []string{"p1", "missing"},
		ArbiterLineOfCredits:  []string{"0x9999999999999999999999999999999999999999"}, // not fetched
	})

	p := sel.UserPortfolio(userAddr)
	if len(p.BorrowerLines) != 1 {
		t.Errorf("expected 1 borrower line, got %d", len(p.BorrowerLines))
	}
	if len(p.LenderPositions) != 1 || p.LenderPositions[0].ID != "p1" {
		t.Error("unknown position ids must be skipped")
	}
	if len(p.ArbiterLines) != 0 {
		t.Error("unfetched arbiter lines must be skipped")
	}
}

func TestUserPortfolio_UnknownUserIsEmpty(t *testing.T) {
	_, sel := seed(t)
	p := sel.UserPortfolio("0xbb00000000000000000000000000000000000001")
	if len(p.BorrowerLines) != 0 || len(p.LenderPositions) != 0 || len(p.ArbiterLines) != 0 {
		t.Error("a user without an ingested portfolio must get empty lists")
	}
}

func TestDepositTokenOptions_TestnetStaticList(t *testing.T) {
	st := store.New()
	sel := New(st)
	st.MergeTokens([]model.TokenView{
		{Address: model.Checksum("0x5555555555555555555555555555555555555555"), Symbol: "AAA", Decimals: 18},
	})

	options := sel.DepositTokenOptions(model.NetworkGoerli, false)
	if len(options) != len(model.TestnetDepositTokens) {
		t.Fatalf("testnet must bypass discovered tokens, got %d options", len(options))
	}
}

func TestDepositTokenOptions_MainTokensFirstThenDiscovered(t *testing.T) {
	st := store.New()
	sel := New(st)
	st.MergeTokens([]model.TokenView{
		{Address: model.Checksum("0x5555555555555555555555555555555555555555"), Symbol: "ZRX", Decimals: 18},
		{Address: model.Checksum("0x6666666666666666666666666666666666666666"), Symbol: "AAVE", Decimals: 18},
		// Duplicate of a main token must not appear twice.
		model.MainDepositTokens[0],
	})

	options := sel.DepositTokenOptions(model.NetworkMainnet, false)
	wantLen := len(model.MainDepositTokens) + 2
	if len(options) != wantLen {
		t.Fatalf("expected %d options, got %d", wantLen, len(options))
	}

	// Main group first, sorted by symbol.
	for i := 1; i < len(model.MainDepositTokens); i++ {
		if options[i-1].Symbol > options[i].Symbol {
			t.Error("main tokens must be sorted by symbol")
		}
	}
	// Discovered group after, sorted by symbol.
	if options[len(model.MainDepositTokens)].Symbol != "AAVE" || options[wantLen-1].Symbol != "ZRX" {
		t.Error("discovered tokens must follow main tokens, sorted by symbol")
	}
}

func TestDepositTokenOptions_AllowEthPrepends(t *testing.T) {
	st := store.New()
	sel := New(st)

	options := sel.DepositTokenOptions(model.NetworkMainnet, true)
	if len(options) == 0 || options[0].Symbol != "ETH" {
		t.Error("allowEth must prepend the ETH pseudo token")
	}
}

func TestDepositTokenOptions_ReturnedSliceIsCallerOwned(t *testing.T) {
	st := store.New()
	sel := New(st)

	first := sel.DepositTokenOptions(model.NetworkMainnet, true)
	first[0] = model.TokenView{Symbol: "HAX"}

	again := sel.DepositTokenOptions(model.NetworkMainnet, true)
	if again[0].Symbol != "ETH" {
		t.Error("mutating a returned slice must not corrupt the memoized result")
	}
}

// Alternating argument tuples must each get their own cached result; the
// memo key captures the full call signature.
func TestDepositTokenOptions_TupleKeyedMemoization(t *testing.T) {
	st := store.New()
	sel := New(st)

	withEth := sel.DepositTokenOptions(model.NetworkMainnet, true)
	withoutEth := sel.DepositTokenOptions(model.NetworkMainnet, false)
	withEthAgain := sel.DepositTokenOptions(model.NetworkMainnet, true)

	if len(withEth) == len(withoutEth) {
		t.Fatal("allowEth variants must differ")
	}
	if withEthAgain[0].Symbol != "ETH" {
		t.Error("stale cache returned for a different argument tuple")
	}
	_ = st
}
