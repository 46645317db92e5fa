package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"forex_bot/internal/models"

	"github.com/bytedance/sonic"
)

// ErrNotConnected возвращается при попытке торговать без живого моста.
var ErrNotConnected = errors.New("mt5 bridge is not connected")

func (c *Client) ensureConnected() error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return nil
}

// PlaceOrder отправляет рыночный ордер в терминал.
func (c *Client) PlaceOrder(ctx context.Context, pair string, side models.Side, lotSize, takeProfit float64) (res *models.OrderResult, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Client.PlaceOrder: %w", err)
		}
	}()

	if err = c.ensureConnected(); err != nil {
		return nil, err
	}

	body := map[string]any{
		"symbol": pair,
		"side":   string(side),
		"volume": lotSize,
	}
	if takeProfit > 0 {
		body["take_profit"] = takeProfit
	}

	var r struct {
		OK     bool    `json:"ok"`
		Ticket int64   `json:"ticket"`
		Price  float64 `json:"price"`
		Volume float64 `json:"volume"`
		Error  string  `json:"error"`
	}
	if err = c.postJSON(ctx, "/order", body, &r); err != nil {
		return nil, err
	}
	if !r.OK {
		return nil, fmt.Errorf("bridge rejected order: %s", r.Error)
	}

	return &models.OrderResult{
		Ticket:    r.Ticket,
		Action:    models.Action(side),
		Volume:    r.Volume,
		FillPrice: r.Price,
	}, nil
}

// CloseAllPositions закрывает все открытые позиции по инструменту.
// Возвращает число закрытых позиций.
func (c *Client) CloseAllPositions(ctx context.Context, pair string) (n int, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Client.CloseAllPositions: %w", err)
		}
	}()

	if err = c.ensureConnected(); err != nil {
		return 0, err
	}

	var r struct {
		OK     bool   `json:"ok"`
		Closed int    `json:"closed"`
		Error  string `json:"error"`
	}
	if err = c.postJSON(ctx, "/close_all", map[string]any{"symbol": pair}, &r); err != nil {
		return 0, err
	}
	if !r.OK {
		return 0, fmt.Errorf("bridge rejected close_all: %s", r.Error)
	}
	return r.Closed, nil
}

func (c *Client) fetchEquity(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Bridge.HTTPURL+"/account", nil)
	if err != nil {
		return 0, fmt.Errorf("Client.fetchEquity new request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("Client.fetchEquity do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("Client.fetchEquity http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		Equity float64 `json:"equity"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return 0, fmt.Errorf("Client.fetchEquity decode: %w", err)
	}
	return r.Equity, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, _ := sonic.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.Bridge.HTTPURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode: %s: %w", string(data), err)
	}
	return nil
}
