package bridge

// Response is the envelope every bridge endpoint replies with.
type Response[T any] struct {
	Error ResponseError `json:"error,omitempty"`
	Data  T             `json:"result"`
}

// ResponseError carries the terminal's trade error code.
type ResponseError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type placeOrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Lots       float64 `json:"lots"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Slippage   int     `json:"slippage"`
	Magic      int     `json:"magic"`
	Comment    string  `json:"comment"`
}

type modifyOrderRequest struct {
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

type closeOrderRequest struct {
	Lots float64 `json:"lots"`
}

type ResponsePlaceOrder struct {
	Ticket uint64  `json:"ticket"`
	Price  float64 `json:"price"`
	Lots   float64 `json:"lots"`
}

type ResponsePosition struct {
	Ticket     uint64  `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Lots       float64 `json:"lots"`
	OpenPrice  float64 `json:"open_price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

type ResponseAccount struct {
	Balance float64 `json:"balance"`
	Equity  float64 `json:"equity"`
}

type ResponseQuote struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Time int64   `json:"time"`
}

type ResponseATR struct {
	ATR float64 `json:"atr"`
}
