// Package bybit adapts Bybit USDT perpetuals to the engine's venue
// surface. The contract leg of the hedge lives here.
package bybit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	bybitapi "github.com/bybit-exchange/bybit.go.api"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

const (
	venueName = "bybit"
	category  = "linear"
)

// Return codes the adapter treats specially.
const (
	retOK                  = 0
	retLeverageNotModified = 110043
	retModeNotModified     = 110025
	retInsufficientBalance = 110007
	retAPIKeyInvalid       = 10003
	retSignatureInvalid    = 10004
	retPermissionDenied    = 10005
)

// Adapter implements domain.VenueAdapter over the official v5 SDK.
type Adapter struct {
	client *bybitapi.Client
	wsURL  string
	logger *slog.Logger
}

var _ domain.VenueAdapter = (*Adapter)(nil)

// New builds an adapter. wsURL is the public linear stream endpoint.
func New(apiKey, apiSecret, baseURL, wsURL string, logger *slog.Logger) *Adapter {
	var client *bybitapi.Client
	if baseURL != "" {
		client = bybitapi.NewBybitHttpClient(apiKey, apiSecret, bybitapi.WithBaseURL(baseURL))
	} else {
		client = bybitapi.NewBybitHttpClient(apiKey, apiSecret)
	}
	if wsURL == "" {
		wsURL = "wss://stream.bybit.com/v5/public/linear"
	}
	return &Adapter{
		client: client,
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "bybit_adapter")),
	}
}

func (a *Adapter) Name() string { return venueName }

// PlaceMarketOrder submits a market order on the linear contract.
func (a *Adapter) PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, qty float64, opts domain.OrderOpts) (domain.OrderHandle, error) {
	params := map[string]interface{}{
		"category":  category,
		"symbol":    instrument,
		"side":      sideOf(side),
		"orderType": "Market",
		"qty":       formatQty(qty),
	}
	if opts.ReduceOnly {
		params["reduceOnly"] = true
	}
	if opts.ClientID != "" {
		params["orderLinkId"] = opts.ClientID
	}

	resp, err := a.client.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return domain.OrderHandle{}, fmt.Errorf("bybit: place %s %s: %w", side, instrument, err)
	}
	if err := checkRet(resp.RetCode, resp.RetMsg); err != nil {
		return domain.OrderHandle{}, fmt.Errorf("bybit: place %s %s: %w", side, instrument, err)
	}

	var result orderResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return domain.OrderHandle{}, fmt.Errorf("bybit: decode place response: %w", err)
	}

	return domain.OrderHandle{
		Venue:        venueName,
		Instrument:   instrument,
		OrderID:      result.OrderID,
		ClientID:     result.OrderLinkID,
		Side:         side,
		RequestedQty: qty,
		PlacedAt:     time.Now().UTC(),
	}, nil
}

// PollOrder reads order status, checking the realtime book first and the
// history endpoint second (filled market orders leave realtime quickly).
func (a *Adapter) PollOrder(ctx context.Context, h domain.OrderHandle) (domain.OrderStatus, error) {
	params := map[string]interface{}{
		"category": category,
		"symbol":   h.Instrument,
		"orderId":  h.OrderID,
	}

	resp, err := a.client.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err == nil && resp.RetCode == retOK {
		var list orderList
		if derr := decodeResult(resp.Result, &list); derr == nil && len(list.List) > 0 {
			return statusOf(list.List[0]), nil
		}
	}

	resp, err = a.client.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("bybit: order history %s: %w", h.OrderID, err)
	}
	if rerr := checkRet(resp.RetCode, resp.RetMsg); rerr != nil {
		return domain.OrderStatus{}, fmt.Errorf("bybit: order history %s: %w", h.OrderID, rerr)
	}
	var list orderList
	if err := decodeResult(resp.Result, &list); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("bybit: decode order history: %w", err)
	}
	if len(list.List) == 0 {
		return domain.OrderStatus{}, fmt.Errorf("bybit: order %s not visible yet: %w", h.OrderID, domain.ErrOrderPending)
	}
	return statusOf(list.List[0]), nil
}

// FetchBalance reads one coin's unified wallet balance.
func (a *Adapter) FetchBalance(ctx context.Context, asset string) (domain.Balance, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
		"coin":        asset,
	}
	resp, err := a.client.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("bybit: wallet: %w", err)
	}
	if rerr := checkRet(resp.RetCode, resp.RetMsg); rerr != nil {
		return domain.Balance{}, fmt.Errorf("bybit: wallet: %w", rerr)
	}
	var list walletList
	if err := decodeResult(resp.Result, &list); err != nil {
		return domain.Balance{}, fmt.Errorf("bybit: decode wallet: %w", err)
	}
	for _, acct := range list.List {
		for _, c := range acct.Coin {
			if c.Coin == asset {
				return balanceOf(asset, c), nil
			}
		}
	}
	return domain.Balance{Asset: asset}, nil
}

// FetchPosition reads the open linear position. One-way mode is assumed:
// a single entry per symbol, short sizes reported negative.
func (a *Adapter) FetchPosition(ctx context.Context, instrument string) (domain.Position, error) {
	params := map[string]interface{}{
		"category": category,
		"symbol":   instrument,
	}
	resp, err := a.client.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("bybit: positions: %w", err)
	}
	if rerr := checkRet(resp.RetCode, resp.RetMsg); rerr != nil {
		return domain.Position{}, fmt.Errorf("bybit: positions: %w", rerr)
	}
	var list positionList
	if err := decodeResult(resp.Result, &list); err != nil {
		return domain.Position{}, fmt.Errorf("bybit: decode positions: %w", err)
	}
	for _, p := range list.List {
		if p.Symbol != instrument || p.Side == "None" {
			continue
		}
		return positionOf(p), nil
	}
	return domain.Position{Instrument: instrument}, nil
}

// SetLeverage switches the symbol into one-way mode and applies the
// leverage. Both calls treat the venue's "not modified" code as success.
func (a *Adapter) SetLeverage(ctx context.Context, instrument string, leverage int) error {
	modeParams := map[string]interface{}{
		"category": category,
		"symbol":   instrument,
		"mode":     0, // one-way
	}
	resp, err := a.client.NewUtaBybitServiceWithParams(modeParams).SwitchPositionMode(ctx)
	if err != nil {
		return fmt.Errorf("bybit: switch position mode: %w", err)
	}
	if resp.RetCode != retOK && resp.RetCode != retModeNotModified {
		if rerr := checkRet(resp.RetCode, resp.RetMsg); rerr != nil {
			return fmt.Errorf("bybit: switch position mode: %w", rerr)
		}
	}

	lev := strconv.Itoa(leverage)
	levParams := map[string]interface{}{
		"category":     category,
		"symbol":       instrument,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	resp, err = a.client.NewUtaBybitServiceWithParams(levParams).SetPositionLeverage(ctx)
	if err != nil {
		return fmt.Errorf("bybit: set leverage: %w", err)
	}
	if resp.RetCode != retOK && resp.RetCode != retLeverageNotModified {
		if rerr := checkRet(resp.RetCode, resp.RetMsg); rerr != nil {
			return fmt.Errorf("bybit: set leverage: %w", rerr)
		}
	}
	a.logger.Info("contract leverage applied",
		slog.String("symbol", instrument),
		slog.Int("leverage", leverage),
	)
	return nil
}

func sideOf(side domain.OrderSide) string {
	if side == domain.OrderSideSell {
		return "Sell"
	}
	return "Buy"
}

func statusOf(o orderEntry) domain.OrderStatus {
	status := domain.OrderStatus{
		State:     stateOf(o.OrderStatus),
		FilledQty: parseFloat(o.CumExecQty),
		AvgPrice:  parseFloat(o.AvgPrice),
		FeeQuote:  parseFloat(o.CumExecFee),
	}
	return status
}

func stateOf(s string) domain.OrderState {
	switch s {
	case "Filled":
		return domain.OrderStateFilled
	case "PartiallyFilledCanceled":
		return domain.OrderStatePartiallyClosed
	case "Cancelled", "Deactivated":
		return domain.OrderStateCancelled
	case "Rejected":
		return domain.OrderStateRejected
	default: // New, PartiallyFilled, Untriggered
		return domain.OrderStateOpen
	}
}

func balanceOf(asset string, c walletCoin) domain.Balance {
	total := parseFloat(c.WalletBalance)
	locked := parseFloat(c.Locked)
	free := parseFloat(c.AvailableToWithdraw)
	if c.AvailableToWithdraw == "" {
		free = total - locked
	}
	return domain.Balance{Asset: asset, Free: free, Locked: locked}
}

func positionOf(p positionEntry) domain.Position {
	size := parseFloat(p.Size)
	if p.Side == "Sell" {
		size = -size
	}
	lev, _ := strconv.Atoi(p.Leverage)
	return domain.Position{
		Instrument: p.Symbol,
		Size:       size,
		EntryPrice: parseFloat(p.AvgPrice),
		Leverage:   lev,
	}
}

// checkRet maps v5 return codes onto the engine's error taxonomy.
func checkRet(code int, msg string) error {
	switch code {
	case retOK:
		return nil
	case retAPIKeyInvalid, retSignatureInvalid, retPermissionDenied:
		return fmt.Errorf("%s (code %d): %w", msg, code, domain.ErrFatalAdapter)
	case retInsufficientBalance:
		return fmt.Errorf("%s (code %d): %w", msg, code, domain.ErrRejectedOrder)
	default:
		return fmt.Errorf("%s (code %d)", msg, code)
	}
}

func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
