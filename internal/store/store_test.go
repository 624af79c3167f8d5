package store

import (
	"testing"

	"github.com/debtline/line-engine/internal/amount"
	"github.com/debtline/line-engine/internal/model"
	"github.com/debtline/line-engine/internal/price"
)

const (
	lineID   = "0x1111111111111111111111111111111111111111"
	daiAddr  = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	usdcAddr = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

func daiInfo() model.TokenInfo {
	return model.TokenInfo{Address: model.Checksum(daiAddr), Symbol: "DAI", Decimals: 18}
}

func seedLine(s *AggregateStore, principal string) model.SecuredLine {
	line := model.SecuredLine{
		ID:        model.Checksum(lineID),
		Borrower:  model.Checksum("0xaa00000000000000000000000000000000000001"),
		Arbiter:   model.Checksum("0xaa00000000000000000000000000000000000002"),
		Status:    model.LineActive,
		Principal: amount.ParseOrZero(principal, amount.UsdDecimals),
		Deposit:   amount.ParseOrZero(principal, amount.UsdDecimals),
	}
	s.MergeLine(line)
	return line
}

func TestMergeLine_LastWriteWins(t *testing.T) {
	s := New()
	seedLine(s, "1000000000000000000000000")

	updated := seedLine(s, "2000000000000000000000000")

	got, ok := s.Line(updated.ID)
	if !ok {
		t.Fatal("line missing after merge")
	}
	if got.Principal.String() != "2000000000000000000000000" {
		t.Errorf("expected second merge to win, got %s", got.Principal)
	}
}

func TestMergePositions_LeavesOthersUntouched(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)

	s.MergePositions(model.PositionMap{
		"p1": {ID: "p1", Line: id, Status: model.PositionOpen},
	})
	s.MergePositions(model.PositionMap{
		"p2": {ID: "p2", Line: id, Status: model.PositionProposed},
	})

	positions := s.PositionsForLine(id)
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}
	if positions["p1"].Status != model.PositionOpen {
		t.Error("unrelated position was clobbered")
	}
}

func TestMergeReserves_DeepPerToken(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)

	s.MergeReserves(id, model.ReservesMap{
		model.Checksum(daiAddr): {Token: daiInfo(), OwnerTokens: amount.ParseOrZero("5", 18)},
	})
	s.MergeReserves(id, model.ReservesMap{
		model.Checksum(usdcAddr): {
			Token:       model.TokenInfo{Address: model.Checksum(usdcAddr), Symbol: "USDC", Decimals: 6},
			OwnerTokens: amount.ParseOrZero("7", 6),
		},
	})

	reserves := s.ReservesForLine(id)
	if len(reserves) != 2 {
		t.Fatalf("expected both tokens after deep merge, got %d", len(reserves))
	}
	if reserves[model.Checksum(daiAddr)].OwnerTokens.String() != "5" {
		t.Error("merging token B must not alter token A's entry")
	}
}

func TestMergeReserves_Idempotent(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)
	payload := model.ReservesMap{
		model.Checksum(daiAddr): {Token: daiInfo(), OwnerTokens: amount.ParseOrZero("5", 18)},
	}

	s.MergeReserves(id, payload)
	s.MergeReserves(id, payload)

	reserves := s.ReservesForLine(id)
	if len(reserves) != 1 || reserves[model.Checksum(daiAddr)].OwnerTokens.String() != "5" {
		t.Error("replaying the same fulfilled payload must be a no-op")
	}
}

func TestMergeCollateral_NilModuleKeepsExisting(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)

	escrow := &model.AggregatedEscrow{Line: id, Deposits: model.EscrowDepositMap{}}
	s.MergeCollateral(id, escrow, nil)

	spigot := &model.AggregatedSpigot{Line: id, RevenueSummary: model.RevenueSummaryMap{}}
	s.MergeCollateral(id, nil, spigot)

	c, ok := s.Collateral(id)
	if !ok {
		t.Fatal("collateral missing")
	}
	if c.Escrow == nil || c.Spigot == nil {
		t.Error("independently merged modules must both survive")
	}
}

// A collateral snapshot handed to a reader must stay stable while fulfill
// reducers keep mutating the stored modules. Run with -race: the reader
// iterates its snapshot maps concurrently with the writer goroutine.
func TestCollateral_SnapshotIsolatedFromFulfills(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)
	s.MergePrices(price.ParseMap(map[string]string{daiAddr: "1000000"}))
	delta := amount.ParseOrZero("1000000000000000000", 18)
	s.FulfillAddCollateral(id, daiInfo(), delta)

	snap, ok := s.Collateral(id)
	if !ok {
		t.Fatal("collateral missing")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.FulfillAddCollateral(id, daiInfo(), delta)
		}
	}()
	for i := 0; i < 200; i++ {
		for _, d := range snap.Escrow.Deposits {
			_ = d.Amount.String()
		}
	}
	<-done

	if got := snap.Escrow.Deposits[daiInfo().Address].Amount.String(); got != "1000000000000000000" {
		t.Errorf("snapshot changed under concurrent fulfills, got %s", got)
	}
}

func TestMergeCollateral_DetachesFromCaller(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)

	escrow := &model.AggregatedEscrow{Line: id, Deposits: model.EscrowDepositMap{}}
	s.MergeCollateral(id, escrow, nil)
	escrow.Deposits[daiInfo().Address] = model.EscrowDeposit{Token: daiInfo()}

	c, _ := s.Collateral(id)
	if len(c.Escrow.Deposits) != 0 {
		t.Error("merged modules must not share maps with the caller")
	}
}

func TestMergeEvents_ByIDAndOrdering(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)

	s.MergeEvents(id, []model.LineEvent{
		{ID: "e2", Line: id, Timestamp: 200},
		{ID: "e1", Line: id, Timestamp: 100},
	})
	s.MergeEvents(id, []model.LineEvent{
		{ID: "e2", Line: id, Timestamp: 200, Type: "AddCollateralEvent"},
	})

	events := s.EventsForLine(id)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "e1" || events[1].ID != "e2" {
		t.Error("events must be ordered by timestamp")
	}
	if events[1].Type != "AddCollateralEvent" {
		t.Error("re-merged event must be updated in place")
	}
}

func TestClear_ResetsEverything(t *testing.T) {
	s := New()
	seedLine(s, "1")
	s.MergeReserves(model.Checksum(lineID), model.ReservesMap{
		model.Checksum(daiAddr): {Token: daiInfo()},
	})

	s.Clear()

	if _, ok := s.Line(model.Checksum(lineID)); ok {
		t.Error("lines must be empty after Clear")
	}
	if len(s.ReservesForLine(model.Checksum(lineID))) != 0 {
		t.Error("reserves must be empty after Clear")
	}
}

func TestVersion_BumpsOnMerge(t *testing.T) {
	s := New()
	v0 := s.Version()
	seedLine(s, "1")
	if s.Version() <= v0 {
		t.Error("version must increase on merge")
	}
}

// --- Operation status slots ---

func TestOpLifecycle_PendingFulfilledRejected(t *testing.T) {
	s := New()

	id := s.BeginOp(OpEnableCollateral)
	if id == "" {
		t.Fatal("expected a request id")
	}
	if st := s.OpState(OpEnableCollateral); !st.Pending || st.ID != id {
		t.Error("operation must be pending after BeginOp")
	}

	s.FulfillEnableCollateral(model.Checksum(lineID), daiInfo())
	if st := s.OpState(OpEnableCollateral); st.Pending || st.Err != "" {
		t.Error("fulfilled operation must clear the status slot")
	}

	s.BeginOp(OpAddCollateral)
	s.RejectOp(OpAddCollateral, "execution reverted")
	st := s.OpState(OpAddCollateral)
	if st.Pending || st.Err != "execution reverted" {
		t.Errorf("rejected operation must store the message, got %+v", st)
	}
}

func TestRejectOp_LeavesDataUntouched(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)
	s.MergePrices(price.ParseMap(map[string]string{daiAddr: "1000000"}))
	s.FulfillAddCollateral(id, daiInfo(), amount.ParseOrZero("1000000000000000000", 18))

	before, _ := s.Collateral(id)
	s.BeginOp(OpReleaseCollateral)
	s.RejectOp(OpReleaseCollateral, "insufficient collateral")
	after, _ := s.Collateral(id)

	if after.Escrow.Deposits[daiInfo().Address].Amount.String() != before.Escrow.Deposits[daiInfo().Address].Amount.String() {
		t.Error("rejection must not mutate data maps")
	}
}

func TestFulfillEnableCollateral_Idempotent(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)
	s.MergePrices(price.ParseMap(map[string]string{daiAddr: "1000000"}))

	s.FulfillEnableCollateral(id, daiInfo())
	s.FulfillEnableCollateral(id, daiInfo())

	c, _ := s.Collateral(id)
	d := c.Escrow.Deposits[daiInfo().Address]
	if !d.Enabled {
		t.Error("deposit must be enabled")
	}
	if !d.Amount.IsZero() {
		t.Error("enable must not change the deposited amount")
	}
}

func TestFulfillAddCollateral_AdditiveByDesign(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)
	seedLine(s, "1000000000000000000000000") // $1 principal
	s.MergePrices(price.ParseMap(map[string]string{daiAddr: "1000000"}))

	delta := amount.ParseOrZero("1000000000000000000", 18) // 1 DAI
	s.FulfillAddCollateral(id, daiInfo(), delta)
	s.FulfillAddCollateral(id, daiInfo(), delta)

	c, _ := s.Collateral(id)
	d := c.Escrow.Deposits[daiInfo().Address]
	if d.Amount.String() != "2000000000000000000" {
		t.Errorf("add collateral must accumulate, got %s", d.Amount)
	}
	// Deposit created by the fulfill is not enabled yet, so no value.
	if !c.Escrow.CollateralValue.IsZero() {
		t.Errorf("disabled deposit must not contribute value, got %s", c.Escrow.CollateralValue)
	}

	s.FulfillEnableCollateral(id, daiInfo())
	c, _ = s.Collateral(id)
	if got := c.Escrow.CollateralValue.Display(2); got != "2.00" {
		t.Errorf("expected 2.00 after enabling, got %s", got)
	}
	if got := c.Escrow.CRatio.StringFixed(2); got != "2.00" {
		t.Errorf("expected cratio 2.00 against $1 principal, got %s", got)
	}
}

func TestFulfillReleaseCollateral_FloorsAtZero(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)
	s.MergePrices(price.ParseMap(map[string]string{daiAddr: "1000000"}))
	s.FulfillAddCollateral(id, daiInfo(), amount.ParseOrZero("1000000000000000000", 18))

	s.FulfillReleaseCollateral(id, daiInfo(), amount.ParseOrZero("5000000000000000000", 18))

	c, _ := s.Collateral(id)
	if !c.Escrow.Deposits[daiInfo().Address].Amount.IsZero() {
		t.Error("release beyond balance must floor at zero")
	}
}

func TestFulfillClaimRevenue(t *testing.T) {
	s := New()
	id := model.Checksum(lineID)
	s.MergePrices(price.ParseMap(map[string]string{daiAddr: "1000000"}))

	s.FulfillAddSpigot(id, "0x3333333333333333333333333333333333333333", daiInfo())
	c, _ := s.Collateral(id)
	entry := c.Spigot.RevenueSummary[daiInfo().Address]
	entry.Amount = amount.ParseOrZero("5000000000000000000", 18)
	c.Spigot.RevenueSummary[daiInfo().Address] = entry
	s.MergeCollateral(id, nil, c.Spigot)

	s.FulfillClaimRevenue(id, daiInfo(), amount.ParseOrZero("2000000000000000000", 18))

	c, _ = s.Collateral(id)
	got := c.Spigot.RevenueSummary[daiInfo().Address]
	if got.Amount.String() != "3000000000000000000" {
		t.Errorf("expected 3e18 claimable left, got %s", got.Amount)
	}
	if got.Value.Display(2) != "3.00" {
		t.Errorf("expected value 3.00, got %s", got.Value.Display(2))
	}
	if c.Spigot.RevenueValue.Display(2) != "3.00" {
		t.Errorf("expected revenue value 3.00, got %s", c.Spigot.RevenueValue.Display(2))
	}
}
