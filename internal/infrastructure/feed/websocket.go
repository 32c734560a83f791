package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"go.uber.org/zap"
)

const (
	MessageSignal = "signal"
	MessagePrice  = "price"

	reconnectDelay = 3 * time.Second
)

// Envelope is the wire format shared by the feed client and the
// /ws/signals endpoint.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type PriceUpdate struct {
	Market string          `json:"market"`
	Price  decimal.Decimal `json:"price"`
}

// Decode parses one envelope into either a signal or a price update.
// Signals without a timestamp are stamped with now.
func Decode(message []byte, now time.Time) (*domain.Signal, *PriceUpdate, error) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case MessageSignal:
		var s domain.Signal
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, nil, fmt.Errorf("decode signal: %w", err)
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
		if err := s.Validate(); err != nil {
			return nil, nil, err
		}
		return &s, nil, nil
	case MessagePrice:
		var p PriceUpdate
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, nil, fmt.Errorf("decode price: %w", err)
		}
		if p.Market == "" || !p.Price.IsPositive() {
			return nil, nil, fmt.Errorf("invalid price update for %q", p.Market)
		}
		return nil, &p, nil
	}
	return nil, nil, fmt.Errorf("unknown message type %q", env.Type)
}

// Client streams signals and prices from a websocket endpoint and keeps the
// last price per market.
type Client struct {
	url    string
	logger *zap.Logger

	mu              sync.Mutex
	prices          map[string]decimal.Decimal
	signalCallbacks []func(domain.Signal)
	priceCallbacks  []func(market string, price decimal.Decimal)
}

func NewClient(url string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    url,
		logger: logger,
		prices: make(map[string]decimal.Decimal),
	}
}

func (c *Client) OnSignal(callback func(domain.Signal)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signalCallbacks = append(c.signalCallbacks, callback)
}

func (c *Client) OnPrice(callback func(market string, price decimal.Decimal)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priceCallbacks = append(c.priceCallbacks, callback)
}

// Prices returns a snapshot of the last known prices.
func (c *Client) Prices() map[string]decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}

// Run dials and reads until ctx is cancelled, reconnecting after failures.
func (c *Client) Run(ctx context.Context) {
	for {
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Feed disconnected, reconnecting", zap.Error(err), zap.Duration("delay", reconnectDelay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.logger.Info("Feed connected", zap.String("url", c.url))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	return c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("feed closed by server")
			}
			return err
		}
		c.Dispatch(message)
	}
}

// Dispatch decodes one message and fans it out to the registered callbacks.
func (c *Client) Dispatch(message []byte) {
	signal, price, err := Decode(message, time.Now())
	if err != nil {
		c.logger.Warn("Dropping feed message", zap.Error(err))
		return
	}

	c.mu.Lock()
	signalCallbacks := make([]func(domain.Signal), len(c.signalCallbacks))
	copy(signalCallbacks, c.signalCallbacks)
	priceCallbacks := make([]func(string, decimal.Decimal), len(c.priceCallbacks))
	copy(priceCallbacks, c.priceCallbacks)
	if price != nil {
		c.prices[price.Market] = price.Price
	}
	c.mu.Unlock()

	if signal != nil {
		for _, cb := range signalCallbacks {
			cb(*signal)
		}
	}
	if price != nil {
		for _, cb := range priceCallbacks {
			cb(price.Market, price.Price)
		}
	}
}
