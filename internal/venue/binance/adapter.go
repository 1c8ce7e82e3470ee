// Package binance adapts the Binance spot exchange to the engine's venue
// surface. The spot leg of the hedge and the earn reservoir live here.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

const venueName = "binance"

// Adapter implements domain.VenueAdapter over the official spot SDK.
type Adapter struct {
	client *binance.Client
	logger *slog.Logger

	// Market orders return their fills synchronously; later status polls
	// do not. Fills are cached per order so PollOrder can report fees.
	mu    sync.Mutex
	fills map[int64][]*binance.Fill
}

var _ domain.VenueAdapter = (*Adapter)(nil)

// New builds an adapter. baseURL overrides the SDK default when non-empty
// (testnet, mirror endpoints).
func New(apiKey, apiSecret, baseURL string, logger *slog.Logger) *Adapter {
	client := binance.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &Adapter{
		client: client,
		logger: logger.With(slog.String("component", "binance_adapter")),
		fills:  make(map[int64][]*binance.Fill),
	}
}

func (a *Adapter) Name() string { return venueName }

// PlaceMarketOrder submits a market order. Quantity is truncated to the
// venue's step by string formatting; callers size trades in lot-safe units.
func (a *Adapter) PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, qty float64, opts domain.OrderOpts) (domain.OrderHandle, error) {
	svc := a.client.NewCreateOrderService().
		Symbol(instrument).
		Side(sideOf(side)).
		Type(binance.OrderTypeMarket).
		Quantity(formatQty(qty))
	if opts.ClientID != "" {
		svc = svc.NewClientOrderID(opts.ClientID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderHandle{}, fmt.Errorf("binance: place %s %s: %w", side, instrument, classify(err))
	}

	a.mu.Lock()
	a.fills[resp.OrderID] = resp.Fills
	a.mu.Unlock()

	return domain.OrderHandle{
		Venue:        venueName,
		Instrument:   instrument,
		OrderID:      strconv.FormatInt(resp.OrderID, 10),
		ClientID:     resp.ClientOrderID,
		Side:         side,
		RequestedQty: qty,
		PlacedAt:     time.UnixMilli(resp.TransactTime),
	}, nil
}

// PollOrder reads order status. Fees come from the cached synchronous
// fills when the venue returned them at placement.
func (a *Adapter) PollOrder(ctx context.Context, h domain.OrderHandle) (domain.OrderStatus, error) {
	id, err := strconv.ParseInt(h.OrderID, 10, 64)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("binance: bad order id %q: %w", h.OrderID, err)
	}

	order, err := a.client.NewGetOrderService().Symbol(h.Instrument).OrderID(id).Do(ctx)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("binance: get order %d: %w", id, classify(err))
	}

	status := domain.OrderStatus{
		State:     stateOf(order.Status),
		FilledQty: parseFloat(order.ExecutedQuantity),
	}
	if quote := parseFloat(order.CummulativeQuoteQuantity); quote > 0 && status.FilledQty > 0 {
		status.AvgPrice = quote / status.FilledQty
	}

	a.mu.Lock()
	fills := a.fills[id]
	a.mu.Unlock()
	for _, f := range fills {
		commission := parseFloat(f.Commission)
		if f.CommissionAsset == baseAssetOf(h.Instrument) {
			status.FeeBase += commission
		} else {
			status.FeeQuote += commission
		}
	}
	return status, nil
}

// FetchBalance reads one asset's spot balance.
func (a *Adapter) FetchBalance(ctx context.Context, asset string) (domain.Balance, error) {
	acct, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("binance: account: %w", classify(err))
	}
	for _, b := range acct.Balances {
		if b.Asset == asset {
			return domain.Balance{
				Asset:  asset,
				Free:   parseFloat(b.Free),
				Locked: parseFloat(b.Locked),
			}, nil
		}
	}
	return domain.Balance{Asset: asset}, nil
}

// FetchPosition always returns a zero position: spot has no positions, the
// holding is the balance itself.
func (a *Adapter) FetchPosition(ctx context.Context, instrument string) (domain.Position, error) {
	return domain.Position{}, nil
}

// SetLeverage is a no-op on spot.
func (a *Adapter) SetLeverage(ctx context.Context, instrument string, leverage int) error {
	return nil
}

func sideOf(side domain.OrderSide) binance.SideType {
	if side == domain.OrderSideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func stateOf(s binance.OrderStatusType) domain.OrderState {
	switch s {
	case binance.OrderStatusTypeFilled:
		return domain.OrderStateFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return domain.OrderStateCancelled
	case binance.OrderStatusTypeRejected:
		return domain.OrderStateRejected
	default:
		return domain.OrderStateOpen
	}
}

// classify maps venue API errors onto the engine's error taxonomy.
func classify(err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case -1002, -2014, -2015: // unauthorized, bad key format, invalid key
		return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrFatalAdapter)
	case -1013, -2010: // invalid quantity filters, new order rejected
		return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrRejectedOrder)
	case -2013: // order does not exist (yet)
		return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrOrderPending)
	default:
		return err
	}
}

func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', 8, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// baseAssetOf strips the common quote suffixes off a symbol. Good enough
// for fee attribution; unknown suffixes attribute to quote.
func baseAssetOf(symbol string) string {
	for _, quote := range []string{"USDT", "USDC", "FDUSD", "BTC", "ETH", "BNB"} {
		if len(symbol) > len(quote) && symbol[len(symbol)-len(quote):] == quote {
			return symbol[:len(symbol)-len(quote)]
		}
	}
	return symbol
}
