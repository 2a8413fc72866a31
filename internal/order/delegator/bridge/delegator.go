// Package bridge talks to a trading terminal through its local HTTP bridge.
package bridge

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"scalper/internal/og"
	"scalper/internal/schema"
	"scalper/pkg/exception"
)

const (
	_defaultBaseURL = "http://127.0.0.1:8765"
	_maxBodySize    = 1 << 20
	_userAgent      = "scalper/bridge"
)

// Delegator is an og.Broker and quote source backed by the bridge.
type Delegator struct {
	base   string
	client *http.Client
}

// NewDelegator creates a delegator for baseURL. A nil client gets a 5s timeout.
func NewDelegator(baseURL string, client *http.Client) *Delegator {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = _defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Delegator{
		base:   baseURL,
		client: client,
	}
}

func (d *Delegator) SubmitOrder(ctx context.Context, order og.BrokerOrder) (og.Fill, error) {
	body := placeOrderRequest{
		Symbol:     order.Symbol,
		Side:       order.Side.String(),
		Lots:       order.Lots,
		Price:      order.Price,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Slippage:   order.Slippage,
		Magic:      order.Magic,
		Comment:    order.Tag,
	}
	var out ResponsePlaceOrder
	if err := d.do(ctx, "submit", http.MethodPost, "/orders", body, &out); err != nil {
		return og.Fill{}, err
	}
	if out.Ticket == 0 {
		return og.Fill{}, exception.ErrOrderEmptyTicket
	}
	if out.Lots == 0 {
		out.Lots = order.Lots
	}
	return og.Fill{Ticket: out.Ticket, Price: out.Price, Lots: out.Lots}, nil
}

func (d *Delegator) ModifyOrder(ctx context.Context, ticket uint64, stopLoss, takeProfit float64) error {
	body := modifyOrderRequest{StopLoss: stopLoss, TakeProfit: takeProfit}
	return d.do(ctx, "modify", http.MethodPut, "/orders/"+strconv.FormatUint(ticket, 10), body, nil)
}

func (d *Delegator) ClosePartial(ctx context.Context, ticket uint64, lots float64) error {
	body := closeOrderRequest{Lots: lots}
	return d.do(ctx, "close", http.MethodPost, "/orders/"+strconv.FormatUint(ticket, 10)+"/close", body, nil)
}

func (d *Delegator) OpenPositions(ctx context.Context, symbol string) ([]schema.BrokerPosition, error) {
	path := "/positions"
	if symbol != "" {
		path += "?symbol=" + url.QueryEscape(symbol)
	}
	var out []ResponsePosition
	if err := d.do(ctx, "positions", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	positions := make([]schema.BrokerPosition, 0, len(out))
	for _, p := range out {
		positions = append(positions, schema.BrokerPosition{
			Ticket:     p.Ticket,
			Symbol:     p.Symbol,
			Side:       schema.ParseSide(p.Side),
			Lots:       p.Lots,
			OpenPrice:  p.OpenPrice,
			StopLoss:   p.StopLoss,
			TakeProfit: p.TakeProfit,
		})
	}
	return positions, nil
}

func (d *Delegator) Account(ctx context.Context) (schema.Account, error) {
	var out ResponseAccount
	if err := d.do(ctx, "account", http.MethodGet, "/account", nil, &out); err != nil {
		return schema.Account{}, err
	}
	return schema.Account{Balance: out.Balance, Equity: out.Equity}, nil
}

// Quote returns the terminal's current bid and ask.
func (d *Delegator) Quote(ctx context.Context, symbol string) (schema.Quote, error) {
	var out ResponseQuote
	if err := d.do(ctx, "quote", http.MethodGet, "/quote/"+url.PathEscape(symbol), nil, &out); err != nil {
		return schema.Quote{}, err
	}
	at := time.Now()
	if out.Time > 0 {
		at = time.Unix(out.Time, 0)
	}
	return schema.Quote{Symbol: symbol, Bid: out.Bid, Ask: out.Ask, At: at}, nil
}

// ATR returns the terminal's M1 average true range over period bars.
func (d *Delegator) ATR(ctx context.Context, symbol string, period int) (float64, error) {
	var out ResponseATR
	path := "/atr/" + url.PathEscape(symbol) + "?period=" + strconv.Itoa(period)
	if err := d.do(ctx, "atr", http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.ATR, nil
}

func (d *Delegator) do(ctx context.Context, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.ConfigFastest.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request").With("op", op)
		}
		reader = bytes.NewReader(payload)
	}

	r, err := http.NewRequestWithContext(ctx, method, d.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "new request").With("op", op)
	}
	r.Header.Set("User-Agent", _userAgent)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(r)
	if err != nil {
		return errors.Wrap(err, "bridge request").With("op", op).With("path", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, _maxBodySize))
	if err != nil {
		return errors.Wrap(err, "read response").With("op", op)
	}

	var data Response[sonicRaw]
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := sonic.ConfigDefault.Unmarshal(raw, &data); err != nil && resp.StatusCode < 300 {
			return errors.Wrap(exception.ErrOrderDecodeResponse, err.Error()).With("op", op)
		}
	}
	if data.Error.Code != 0 {
		return &og.BrokerError{Op: op, Code: data.Error.Code, Message: data.Error.Message}
	}
	if resp.StatusCode >= 300 {
		return &og.BrokerError{Op: op, Code: statusCode(resp.StatusCode), Message: resp.Status}
	}
	if out == nil || len(data.Data) == 0 {
		return nil
	}
	if err := sonic.ConfigDefault.Unmarshal(data.Data, out); err != nil {
		return errors.Wrap(exception.ErrOrderDecodeResponse, err.Error()).With("op", op)
	}
	return nil
}

// sonicRaw defers decoding of the result until the error field is checked.
type sonicRaw []byte

func (r *sonicRaw) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// statusCode maps HTTP failures without a trade code onto terminal codes.
func statusCode(status int) int {
	switch status {
	case http.StatusTooManyRequests:
		return og.CodeTooManyRequests
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return og.CodeServerBusy
	default:
		return og.CodeCommonError
	}
}
