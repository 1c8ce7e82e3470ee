package bybit

import "encoding/json"

// Typed views of the v5 API's Result payloads. The SDK returns Result as
// an untyped interface, so responses are re-decoded through JSON.

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type orderEntry struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
	CumExecFee  string `json:"cumExecFee"`
}

type orderList struct {
	List []orderEntry `json:"list"`
}

type positionEntry struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"` // Buy, Sell or None
	Size     string `json:"size"`
	AvgPrice string `json:"avgPrice"`
	Leverage string `json:"leverage"`
}

type positionList struct {
	List []positionEntry `json:"list"`
}

type walletCoin struct {
	Coin          string `json:"coin"`
	WalletBalance string `json:"walletBalance"`
	Locked        string `json:"locked"`
	// availableToWithdraw may be empty on unified accounts; walletBalance
	// minus locked is used as the free amount then.
	AvailableToWithdraw string `json:"availableToWithdraw"`
}

type walletAccount struct {
	AccountType string       `json:"accountType"`
	Coin        []walletCoin `json:"coin"`
}

type walletList struct {
	List []walletAccount `json:"list"`
}

// decodeResult re-marshals an untyped Result into the target struct.
func decodeResult(result any, out any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
