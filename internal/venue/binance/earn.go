package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/okay456okay/crypto-earn-sub001/internal/crypto"
	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// EarnReservoir frees capital parked in Simple Earn flexible products. The
// SDK does not cover these SAPI endpoints, so requests are signed directly.
type EarnReservoir struct {
	baseURL string
	signer  *crypto.QuerySigner
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ domain.CapitalReservoir = (*EarnReservoir)(nil)

// NewEarnReservoir builds a reservoir against baseURL (the spot API host).
func NewEarnReservoir(apiKey, apiSecret, baseURL string, logger *slog.Logger) *EarnReservoir {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &EarnReservoir{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  &crypto.QuerySigner{Key: apiKey, Secret: apiSecret},
		http:    &http.Client{Timeout: 10 * time.Second},
		// The SAPI earn endpoints carry heavy request weight; pace them
		// well below the account limit.
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		logger:  logger.With(slog.String("component", "earn_reservoir")),
	}
}

type flexiblePosition struct {
	TotalAmount string `json:"totalAmount"`
	ProductID   string `json:"productId"`
	Asset       string `json:"asset"`
	CanRedeem   bool   `json:"canRedeem"`
}

type flexiblePositionPage struct {
	Rows []flexiblePosition `json:"rows"`
}

type redeemResponse struct {
	RedeemID int64 `json:"redeemId"`
	Success  bool  `json:"success"`
}

// Redeem moves up to amount of asset from flexible earn back into the spot
// wallet. Returns the amount actually requested for redemption, capped by
// the redeemable position.
func (r *EarnReservoir) Redeem(ctx context.Context, asset string, amount float64) (float64, error) {
	pos, err := r.findPosition(ctx, asset)
	if err != nil {
		return 0, err
	}
	if pos == nil || !pos.CanRedeem {
		return 0, fmt.Errorf("binance: no redeemable earn position for %s: %w", asset, domain.ErrInsufficientCollateral)
	}

	available, _ := strconv.ParseFloat(pos.TotalAmount, 64)
	if available <= 0 {
		return 0, fmt.Errorf("binance: earn position for %s is empty: %w", asset, domain.ErrInsufficientCollateral)
	}
	redeem := amount
	if redeem > available {
		redeem = available
	}

	params := url.Values{}
	params.Set("productId", pos.ProductID)
	params.Set("amount", strconv.FormatFloat(redeem, 'f', 8, 64))

	var resp redeemResponse
	if err := r.call(ctx, http.MethodPost, "/sapi/v1/simple-earn/flexible/redeem", params, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, fmt.Errorf("binance: earn redeem of %.8f %s not accepted", redeem, asset)
	}

	r.logger.Info("earn redemption accepted",
		slog.String("asset", asset),
		slog.Float64("amount", redeem),
		slog.Int64("redeem_id", resp.RedeemID),
	)
	return redeem, nil
}

func (r *EarnReservoir) findPosition(ctx context.Context, asset string) (*flexiblePosition, error) {
	params := url.Values{}
	params.Set("asset", asset)

	var page flexiblePositionPage
	if err := r.call(ctx, http.MethodGet, "/sapi/v1/simple-earn/flexible/position", params, &page); err != nil {
		return nil, err
	}
	for i := range page.Rows {
		if page.Rows[i].Asset == asset {
			return &page.Rows[i], nil
		}
	}
	return nil, nil
}

func (r *EarnReservoir) call(ctx context.Context, method, path string, params url.Values, out any) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	query := r.signer.SignedQuery(params, time.Now())
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("binance: build %s request: %w", path, err)
	}
	req.Header.Set("X-MBX-APIKEY", r.signer.Key)

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("binance: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("binance: read %s response: %w", path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("binance: %s status %d: %w", path, resp.StatusCode, domain.ErrFatalAdapter)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("binance: %s status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance: decode %s response: %w", path, err)
	}
	return nil
}
