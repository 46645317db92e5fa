package service

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"forex_bot/internal/models"
	"forex_bot/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Client — мост к терминалу MT5: котировки по WebSocket, ордера по HTTP.
// Один коннект на весь процесс, последняя закрытая свеча кешируется
// по паре "PAIR|TF".
type Client struct {
	cfg *config.Config

	http     *http.Client
	wsDialer *websocket.Dialer

	connected atomic.Bool

	mu      sync.RWMutex
	candles map[string]models.Candle
	equity  float64
	watch   map[string]struct{} // пары, по которым просим стрим
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: 10 * time.Second},
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		candles:  make(map[string]models.Candle),
		watch:    make(map[string]struct{}),
	}
}

func cacheKey(pair, timeframe string) string {
	return strings.ToUpper(pair) + "|" + timeframe
}

// Watch добавляет пару в подписку стрима. Сервер моста шлёт все свечи
// по подписанным символам, так что достаточно одного сообщения.
func (c *Client) Watch(pair string) {
	c.mu.Lock()
	c.watch[strings.ToUpper(pair)] = struct{}{}
	c.mu.Unlock()
}

// Start держит WebSocket-соединение живым: реконнект с паузой,
// подписка после каждого коннекта, read-loop до ошибки.
func (c *Client) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			log.Printf("[BRIDGE] connect %s", c.cfg.Bridge.WSURL)
			conn, _, err := c.wsDialer.DialContext(ctx, c.cfg.Bridge.WSURL, nil)
			if err != nil {
				log.Printf("[BRIDGE] dial error: %v", err)
				c.connected.Store(false)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}

			if err := c.subscribe(conn); err != nil {
				log.Printf("[BRIDGE] subscribe error: %v", err)
				_ = conn.Close()
				continue
			}
			c.connected.Store(true)

			// keepalive ping — мост рвёт молчащие соединения
			stopPing := make(chan struct{})
			go func() {
				t := time.NewTicker(20 * time.Second)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-stopPing:
						return
					case <-t.C:
						_ = conn.WriteMessage(websocket.PingMessage, nil)
					}
				}
			}()

			c.readLoop(ctx, conn)

			close(stopPing)
			_ = conn.Close()
			c.connected.Store(false)
		}
	}()
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	c.mu.RLock()
	pairs := make([]string, 0, len(c.watch))
	for p := range c.watch {
		pairs = append(pairs, p)
	}
	c.mu.RUnlock()

	sub := map[string]any{
		"op":      "subscribe",
		"symbols": pairs,
	}
	return conn.WriteJSON(sub)
}

// кадр стрима моста: либо свеча, либо снапшот счёта
type bridgeFrame struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Time      int64   `json:"time"` // unix seconds начала свечи
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	Equity    float64 `json:"equity"`
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[BRIDGE] read error: %v", err)
			return
		}

		var frame bridgeFrame
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue // защита от мусора в стриме
		}

		switch frame.Type {
		case "candle":
			if frame.Symbol == "" || frame.Close <= 0 {
				continue
			}
			c.mu.Lock()
			c.candles[cacheKey(frame.Symbol, frame.Timeframe)] = models.Candle{
				Timestamp: time.Unix(frame.Time, 0),
				Open:      frame.Open,
				High:      frame.High,
				Low:       frame.Low,
				Close:     frame.Close,
				Volume:    frame.Volume,
			}
			c.mu.Unlock()
		case "account":
			c.mu.Lock()
			c.equity = frame.Equity
			c.mu.Unlock()
		}
	}
}

// IsConnected — живо ли соединение с терминалом.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// LatestCandle отдаёт последнюю закрытую свечу из кеша.
// ok==false пока по паре/таймфрейму ничего не пришло.
func (c *Client) LatestCandle(ctx context.Context, pair, timeframe string) (models.Candle, bool, error) {
	c.Watch(pair) // ленивое расширение подписки на следующий реконнект

	c.mu.RLock()
	candle, ok := c.candles[cacheKey(pair, timeframe)]
	c.mu.RUnlock()
	return candle, ok, nil
}

// AccountEquity — последний снапшот equity из стрима; если стрим его ещё
// не прислал — спрашиваем мост по HTTP.
func (c *Client) AccountEquity(ctx context.Context) (float64, error) {
	c.mu.RLock()
	eq := c.equity
	c.mu.RUnlock()
	if eq > 0 {
		return eq, nil
	}
	return c.fetchEquity(ctx)
}
