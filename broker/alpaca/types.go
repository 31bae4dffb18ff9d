package alpaca

import (
	"fmt"
	"net/http"
	"strconv"

	"orb/broker"
	"orb/resilient"
)

// The API returns monetary values as JSON strings.

type apiAccount struct {
	ID             string `json:"id"`
	PortfolioValue string `json:"portfolio_value"`
	Cash           string `json:"cash"`
	Currency       string `json:"currency"`
}

type apiClock struct {
	Timestamp string `json:"timestamp"`
	IsOpen    bool   `json:"is_open"`
	NextOpen  string `json:"next_open"`
	NextClose string `json:"next_close"`
}

type apiBar struct {
	T string  `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

type apiBars struct {
	Bars          []apiBar `json:"bars"`
	NextPageToken string   `json:"next_page_token"`
}

type apiTrade struct {
	Trade struct {
		P float64 `json:"p"`
		T string  `json:"t"`
	} `json:"trade"`
}

type takeProfit struct {
	LimitPrice string `json:"limit_price"`
}

type stopLoss struct {
	StopPrice string `json:"stop_price"`
}

type apiOrderRequest struct {
	Symbol        string      `json:"symbol"`
	Qty           string      `json:"qty"`
	Side          string      `json:"side"`
	Type          string      `json:"type"`
	TimeInForce   string      `json:"time_in_force"`
	LimitPrice    string      `json:"limit_price,omitempty"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	OrderClass    string      `json:"order_class,omitempty"`
	TakeProfit    *takeProfit `json:"take_profit,omitempty"`
	StopLoss      *stopLoss   `json:"stop_loss,omitempty"`
}

type apiOrder struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Qty           string `json:"qty"`
	FilledQty     string `json:"filled_qty"`
	FilledAvg     string `json:"filled_avg_price"`
	Status        string `json:"status"`
	SubmittedAt   string `json:"submitted_at"`
	FilledAt      string `json:"filled_at"`
}

type apiPosition struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	AvgEntry    string `json:"avg_entry_price"`
	MarketValue string `json:"market_value"`
}

type apiActivity struct {
	ID              string `json:"id"`
	OrderID         string `json:"order_id"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	Qty             string `json:"qty"`
	Price           string `json:"price"`
	TransactionTime string `json:"transaction_time"`
}

// classifyStatus maps an HTTP failure to the retry taxonomy. 403 and 422
// are broker rejections: permanent and session-fatal.
func classifyStatus(status int, body string) error {
	switch status {
	case http.StatusForbidden, http.StatusUnprocessableEntity:
		return broker.Rejected(fmt.Sprintf("status %d: %s", status, body))
	default:
		return resilient.FromStatus(status, body)
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	// Fractional positions are not traded here; truncate toward zero.
	f, _ := strconv.ParseFloat(s, 64)
	return int64(f)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
