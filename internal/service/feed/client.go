package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"Frisk/internal/domain/models"
	drepo "Frisk/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a TransactionStream backed by the payment gateway's
// WebSocket event feed.
type Client struct {
	apiKey         string
	websocketURL   string
	channels       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new gateway TransactionStream.
func New(apiKey, websocketURL string, channels []string, reconnectDelay, pingInterval time.Duration) drepo.TransactionStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		channels:       channels,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("feed: connected")
	return nil
}

// Subscribe subscribes to the configured gateway channels.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	for _, ch := range c.channels {
		msg := map[string]string{"type": "subscribe", "channel": ch}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
		log.Printf("feed: subscribed %s", ch)
	}
	return nil
}

type wireTxn struct {
	TxnID          string   `json:"txn_id"`
	Time           float64  `json:"time"`
	Amount         float64  `json:"amount"`
	MerchantID     *int64   `json:"merchant_id"`
	DeviceType     *string  `json:"device_type"`
	GeoBucket      *int64   `json:"geo_bucket"`
	AccountID      *int64   `json:"account_id"`
	AccountAgeDays *float64 `json:"account_age_days"`
}

type wireMessage struct {
	Type string    `json:"type"`
	Data []wireTxn `json:"data"`
}

// Read streams Transaction events and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.Transaction, <-chan error) {
	txns := make(chan *models.Transaction, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(txns)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("feed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feed read: %w", err)
					return
				}
				var m wireMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-transaction frames
					continue
				}
				if m.Type != "transaction" {
					continue
				}
				for _, d := range m.Data {
					txn := &models.Transaction{
						TxnID:          d.TxnID,
						Time:           d.Time,
						Amount:         d.Amount,
						MerchantID:     d.MerchantID,
						DeviceType:     d.DeviceType,
						GeoBucket:      d.GeoBucket,
						AccountID:      d.AccountID,
						AccountAgeDays: d.AccountAgeDays,
					}
					select {
					case txns <- txn:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return txns, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
