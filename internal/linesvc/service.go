// Package linesvc provides the HTTP surface of the line engine: ingest
// endpoints fed by the external data-fetching services, and query
// endpoints exposing the derived projections.
//
// Handlers never fail on missing optional data — absent fragments merge
// as empty slices and queries return degraded-but-well-typed results.
package linesvc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/debtline/line-engine/internal/amount"
	"github.com/debtline/line-engine/internal/metrics"
	"github.com/debtline/line-engine/internal/model"
	"github.com/debtline/line-engine/internal/normalize"
	"github.com/debtline/line-engine/internal/price"
	"github.com/debtline/line-engine/internal/role"
	"github.com/debtline/line-engine/internal/selector"
	"github.com/debtline/line-engine/internal/store"
)

// Service handles ingest and query requests over one aggregate store.
// Archive and cache are optional; pass nil to disable them.
type Service struct {
	store    *store.AggregateStore
	selector *selector.Selector
	network  model.Network
	hub      *Hub
	archive  *store.Archive
	cache    *store.ProjectionCache
}

// NewService creates a line service. Pass nil for hub, archive, or cache
// when the corresponding layer is not configured.
func NewService(st *store.AggregateStore, sel *selector.Selector, network model.Network, hub *Hub, archive *store.Archive, cache *store.ProjectionCache) *Service {
	return &Service{
		store:    st,
		selector: sel,
		network:  network,
		hub:      hub,
		archive:  archive,
		cache:    cache,
	}
}

// --- Request types ---

// LineBundle is the ingest payload for one line: the fragment slices the
// external services fetched for it, plus any fresh prices.
type LineBundle struct {
	Line             model.LineFragment             `json:"line"`
	EscrowID         string                         `json:"escrowId"`
	SpigotID         string                         `json:"spigotId"`
	MinCRatio        string                         `json:"minCRatio"`
	Positions        []model.PositionFragment       `json:"positions"`
	EscrowDeposits   []model.EscrowDepositFragment  `json:"escrowDeposits"`
	RevenueSummaries []model.RevenueSummaryFragment `json:"revenueSummaries"`
	Prices           map[string]string              `json:"prices"`
}

// EventsPayload carries event fragments for one line.
type EventsPayload struct {
	Events []model.EventFragment `json:"events"`
}

// ReservesPayload carries the tradeable query result for one line.
type ReservesPayload struct {
	Reserves []model.ReserveFragment `json:"reserves"`
}

// PricesPayload carries a raw price feed update.
type PricesPayload struct {
	Prices map[string]string `json:"prices"`
}

// TokenPayload is one discovered supported token.
type TokenPayload struct {
	Address   string `json:"address"`
	Symbol    string `json:"symbol"`
	Decimals  int32  `json:"decimals"`
	Balance   string `json:"balance"`
	PriceUsdc string `json:"priceUsdc"`
}

// TokensPayload carries discovered supported tokens.
type TokensPayload struct {
	Tokens []TokenPayload `json:"tokens"`
}

// --- Ingest handlers ---

// IngestLine handles POST /api/v1/lines
// Normalizes a fetched line bundle and merges it into the store.
func (s *Service) IngestLine(w http.ResponseWriter, r *http.Request) {
	var bundle LineBundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if bundle.Line.ID == "" {
		writeError(w, "line id is required", http.StatusBadRequest)
		return
	}

	if len(bundle.Prices) > 0 {
		s.store.MergePrices(price.ParseMap(bundle.Prices))
		metrics.MergesTotal.WithLabelValues("prices").Inc()
	}
	prices := s.store.Prices()

	data := normalize.FormatSecuredLineData(
		bundle.Line.ID, bundle.EscrowID, bundle.SpigotID,
		bundle.Positions, bundle.EscrowDeposits, bundle.RevenueSummaries,
		prices,
	)
	line := normalize.FormatSecuredLine(bundle.Line, bundle.EscrowID, bundle.SpigotID, data.Credit)

	escrow := data.Escrow
	if bundle.MinCRatio != "" {
		if min, err := decimal.NewFromString(bundle.MinCRatio); err == nil {
			escrow.MinCRatio = min
		}
	}

	s.store.MergeLine(line)
	s.store.MergePositions(data.Positions)
	s.store.MergeCollateral(line.ID, &escrow, &data.Spigot)
	metrics.MergesTotal.WithLabelValues("lines").Inc()
	metrics.MergesTotal.WithLabelValues("positions").Inc()
	metrics.MergesTotal.WithLabelValues("collateral").Inc()
	metrics.LinesTracked.Set(float64(s.store.LineCount()))

	if s.archive != nil {
		if err := s.archive.SaveLineSnapshot(r.Context(), line, escrow.CollateralValue); err != nil {
			slog.Error("line snapshot failed", "line", line.ID, "err", err)
		}
	}
	s.invalidate(r, line.ID)
	s.broadcast(Message{
		Type:            "line_updated",
		LineID:          line.ID,
		Status:          string(line.Status),
		Principal:       line.Principal.String(),
		CollateralValue: escrow.CollateralValue.String(),
	})

	slog.Info("line merged",
		"line", line.ID,
		"status", line.Status,
		"positions", len(data.Positions),
		"deposits", len(escrow.Deposits),
		"principal", line.Principal.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(s.selector.SelectedLinePage(line.ID))
}

// IngestEvents handles POST /api/v1/lines/{lineID}/events
func (s *Service) IngestEvents(w http.ResponseWriter, r *http.Request) {
	lineID := model.Checksum(chi.URLParam(r, "lineID"))

	var payload EventsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	prices := s.store.Prices()
	events := make([]model.LineEvent, 0, len(payload.Events))
	for _, f := range payload.Events {
		events = append(events, normalize.FormatEvent(lineID, f, prices))
	}

	s.store.MergeEvents(lineID, events)
	metrics.MergesTotal.WithLabelValues("events").Inc()
	s.invalidate(r, lineID)

	w.WriteHeader(http.StatusAccepted)
}

// IngestReserves handles POST /api/v1/lines/{lineID}/reserves
// Applies the tradeable query result: deep-merges the per-token reserves
// and partially re-derives the spigot's revenue summary for exactly the
// tokens present in the payload.
func (s *Service) IngestReserves(w http.ResponseWriter, r *http.Request) {
	lineID := model.Checksum(chi.URLParam(r, "lineID"))

	var payload ReservesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reserves := make(model.ReservesMap, len(payload.Reserves))
	for _, f := range payload.Reserves {
		token := f.Token.Info()
		reserves[token.Address] = model.ReserveEntry{
			Token:          token,
			OwnerTokens:    amount.ParseOrZero(f.OwnerTokens, token.Decimals),
			OperatorTokens: amount.ParseOrZero(f.OperatorTokens, token.Decimals),
			UnusedTokens:   amount.ParseOrZero(f.UnusedTokens, token.Decimals),
		}
	}

	s.store.MergeReserves(lineID, reserves)
	metrics.MergesTotal.WithLabelValues("reserves").Inc()

	spigot := model.AggregatedSpigot{
		Line:           lineID,
		RevenueValue:   amount.Zero(amount.UsdDecimals),
		RevenueSummary: model.RevenueSummaryMap{},
	}
	if c, ok := s.store.Collateral(lineID); ok && c.Spigot != nil {
		spigot = *c.Spigot
	}
	updated := normalize.FormatCollateralRevenue(spigot, reserves, s.store.Prices())
	s.store.MergeCollateral(lineID, nil, &updated)
	metrics.MergesTotal.WithLabelValues("collateral").Inc()

	s.invalidate(r, lineID)
	s.broadcast(Message{
		Type:         "reserves_updated",
		LineID:       lineID,
		RevenueValue: updated.RevenueValue.String(),
	})

	slog.Info("reserves merged", "line", lineID, "tokens", len(reserves))
	w.WriteHeader(http.StatusAccepted)
}

// IngestPrices handles POST /api/v1/prices
func (s *Service) IngestPrices(w http.ResponseWriter, r *http.Request) {
	var payload PricesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.store.MergePrices(price.ParseMap(payload.Prices))
	metrics.MergesTotal.WithLabelValues("prices").Inc()
	w.WriteHeader(http.StatusAccepted)
}

// IngestTokens handles POST /api/v1/tokens
func (s *Service) IngestTokens(w http.ResponseWriter, r *http.Request) {
	var payload TokensPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tokens := make([]model.TokenView, 0, len(payload.Tokens))
	for _, t := range payload.Tokens {
		balance := amount.ParseOrZero(t.Balance, t.Decimals)
		priceUsdc := amount.ParseOrZero(t.PriceUsdc, amount.PriceDecimals)
		tokens = append(tokens, model.TokenView{
			Address:     model.Checksum(t.Address),
			Symbol:      t.Symbol,
			Decimals:    t.Decimals,
			Balance:     balance,
			BalanceUsdc: balance.Rescale(amount.WadDecimals).MulPrice(priceUsdc),
			PriceUsdc:   priceUsdc,
		})
	}

	s.store.MergeTokens(tokens)
	metrics.MergesTotal.WithLabelValues("tokens").Inc()
	w.WriteHeader(http.StatusAccepted)
}

// IngestUserTokens handles POST /api/v1/wallet/tokens
// Merges the connected wallet's token balances.
func (s *Service) IngestUserTokens(w http.ResponseWriter, r *http.Request) {
	var payload TokensPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tokens := make([]model.TokenView, 0, len(payload.Tokens))
	for _, t := range payload.Tokens {
		balance := amount.ParseOrZero(t.Balance, t.Decimals)
		priceUsdc := amount.ParseOrZero(t.PriceUsdc, amount.PriceDecimals)
		tokens = append(tokens, model.TokenView{
			Address:     model.Checksum(t.Address),
			Symbol:      t.Symbol,
			Decimals:    t.Decimals,
			Balance:     balance,
			BalanceUsdc: balance.Rescale(amount.WadDecimals).MulPrice(priceUsdc),
			PriceUsdc:   priceUsdc,
		})
	}

	s.store.MergeUserTokens(tokens)
	metrics.MergesTotal.WithLabelValues("user_tokens").Inc()
	w.WriteHeader(http.StatusAccepted)
}

// CollateralOpPayload reports one phase of an async collateral operation
// against a line. The engine tracks the status slot and applies fulfilled
// outcomes to the collateral aggregates; it submits nothing itself.
type CollateralOpPayload struct {
	Status   string              `json:"status"` // pending | fulfilled | rejected
	Token    model.TokenFragment `json:"token"`
	Amount   string              `json:"amount"`
	SpigotID string              `json:"spigotId"`
	Error    string              `json:"error"`
}

// IngestCollateralOp handles POST /api/v1/lines/{lineID}/collateral/{kind}
func (s *Service) IngestCollateralOp(w http.ResponseWriter, r *http.Request) {
	lineID := model.Checksum(chi.URLParam(r, "lineID"))
	kind := store.OpKind(chi.URLParam(r, "kind"))
	switch kind {
	case store.OpEnableCollateral, store.OpAddCollateral,
		store.OpReleaseCollateral, store.OpAddSpigot, store.OpClaimRevenue:
	default:
		writeError(w, "unknown operation kind", http.StatusBadRequest)
		return
	}

	var payload CollateralOpPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch payload.Status {
	case "pending":
		id := s.store.BeginOp(kind)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"id": id})
		return

	case "rejected":
		s.store.RejectOp(kind, payload.Error)
		metrics.OpRejectionsTotal.WithLabelValues(string(kind)).Inc()
		slog.Info("collateral op rejected", "line", lineID, "op", kind, "err", payload.Error)
		w.WriteHeader(http.StatusAccepted)
		return

	case "fulfilled":
	default:
		writeError(w, "status must be pending, fulfilled, or rejected", http.StatusBadRequest)
		return
	}

	token := payload.Token.Info()
	delta := amount.ParseOrZero(payload.Amount, token.Decimals)
	switch kind {
	case store.OpEnableCollateral:
		s.store.FulfillEnableCollateral(lineID, token)
	case store.OpAddCollateral:
		s.store.FulfillAddCollateral(lineID, token, delta)
	case store.OpReleaseCollateral:
		s.store.FulfillReleaseCollateral(lineID, token, delta)
	case store.OpAddSpigot:
		s.store.FulfillAddSpigot(lineID, payload.SpigotID, token)
	case store.OpClaimRevenue:
		s.store.FulfillClaimRevenue(lineID, token, delta)
	}
	metrics.MergesTotal.WithLabelValues("collateral").Inc()
	s.invalidate(r, lineID)

	if c, ok := s.store.Collateral(lineID); ok && c.Escrow != nil {
		s.broadcast(Message{
			Type:            "collateral_updated",
			LineID:          lineID,
			CollateralValue: c.Escrow.CollateralValue.String(),
		})
	}

	slog.Info("collateral op fulfilled", "line", lineID, "op", kind, "token", token.Address)
	w.WriteHeader(http.StatusAccepted)
}

// IngestPortfolio handles POST /api/v1/users/{address}/portfolio
func (s *Service) IngestPortfolio(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	var ids model.UserPortfolioIDs
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.store.MergePortfolio(address, ids)
	metrics.MergesTotal.WithLabelValues("portfolios").Inc()
	w.WriteHeader(http.StatusAccepted)
}

// Clear handles POST /api/v1/clear — session reset / network switch.
func (s *Service) Clear(w http.ResponseWriter, r *http.Request) {
	s.store.Clear()
	metrics.LinesTracked.Set(0)
	slog.Info("aggregate store cleared")
	w.WriteHeader(http.StatusNoContent)
}

// --- Query handlers ---

// GetLine handles GET /api/v1/lines/{lineID}
func (s *Service) GetLine(w http.ResponseWriter, r *http.Request) {
	lineID := model.Checksum(chi.URLParam(r, "lineID"))

	if s.cache != nil {
		if data, ok := s.cache.GetLinePage(r.Context(), lineID); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
			return
		}
	}

	page := s.selector.SelectedLinePage(lineID)
	if page == nil {
		writeError(w, "line not found", http.StatusNotFound)
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		writeError(w, "failed to encode line", http.StatusInternalServerError)
		return
	}
	if s.cache != nil {
		s.cache.SetLinePage(r.Context(), lineID, data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// GetLineHistory handles GET /api/v1/lines/{lineID}/history
// Serves archived snapshots; requires the archive to be configured.
func (s *Service) GetLineHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, "snapshot archive not configured", http.StatusNotImplemented)
		return
	}
	lineID := model.Checksum(chi.URLParam(r, "lineID"))

	snapshots, err := s.archive.ListLineSnapshots(r.Context(), lineID)
	if err != nil {
		writeError(w, "failed to load snapshots", http.StatusInternalServerError)
		return
	}
	if snapshots == nil {
		snapshots = []store.LineSnapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshots)
}

// GetPortfolio handles GET /api/v1/users/{address}/portfolio
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.selector.UserPortfolio(address))
}

// GetRole handles GET /api/v1/users/{address}/lines/{lineID}/role
// Optional ?position= selects a position for the computation.
func (s *Service) GetRole(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	lineID := model.Checksum(chi.URLParam(r, "lineID"))

	line, ok := s.store.Line(lineID)
	if !ok {
		writeError(w, "line not found", http.StatusNotFound)
		return
	}
	positions := s.store.PositionsForLine(lineID)
	collateral, _ := s.store.Collateral(lineID)

	meta := role.Resolve(address, line, r.URL.Query().Get("position"), positions, collateral)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

// GetDepositTokenOptions handles GET /api/v1/tokens/deposit-options
// Optional ?allowEth=true includes the native-ETH pseudo token.
func (s *Service) GetDepositTokenOptions(w http.ResponseWriter, r *http.Request) {
	allowEth := r.URL.Query().Get("allowEth") == "true"
	options := s.selector.DepositTokenOptions(s.network, allowEth)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(options)
}

// GetUserTokens handles GET /api/v1/wallet/tokens
func (s *Service) GetUserTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.store.UserTokens()
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokens)
}

// GetOpStatus handles GET /api/v1/ops/{kind}
func (s *Service) GetOpStatus(w http.ResponseWriter, r *http.Request) {
	kind := store.OpKind(chi.URLParam(r, "kind"))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.OpState(kind))
}

// --- Helpers ---

func (s *Service) invalidate(r *http.Request, lineID string) {
	if s.cache != nil {
		s.cache.InvalidateLine(r.Context(), lineID)
	}
}

func (s *Service) broadcast(msg Message) {
	if s.hub != nil {
		msg.At = time.Now().UTC().Unix()
		s.hub.Broadcast(msg)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
