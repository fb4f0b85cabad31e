package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Binance streams 24h mini tickers for a fixed symbol set and caches the
// last close price of each. Run keeps the connection alive until ctx ends.
type Binance struct {
	url     string
	symbols map[string]string // exchange symbol -> configured symbol
	cache   *Cache
	dialer  *websocket.Dialer
	log     zerolog.Logger

	ReadTimeout  time.Duration
	PingInterval time.Duration
	MaxBackoff   time.Duration
}

func NewBinance(url string, symbols []string, log zerolog.Logger) *Binance {
	m := make(map[string]string, len(symbols))
	for _, s := range symbols {
		m[ExchangeSymbol(s)] = s
	}
	return &Binance{
		url:          url,
		symbols:      m,
		cache:        NewCache(),
		dialer:       websocket.DefaultDialer,
		log:          log.With().Str("component", "binance").Logger(),
		ReadTimeout:  60 * time.Second,
		PingInterval: 20 * time.Second,
		MaxBackoff:   time.Minute,
	}
}

// SetMaxPriceAge makes Price fail for symbols whose last ticker is older
// than d.
func (b *Binance) SetMaxPriceAge(d time.Duration) { b.cache.SetMaxAge(d) }

func (b *Binance) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return b.cache.Price(ctx, symbol)
}

// Run connects, subscribes and reads until ctx is cancelled, reconnecting
// with exponential backoff on failure.
func (b *Binance) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		b.log.Warn().Err(err).Dur("retry_in", backoff).Msg("stream disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > b.MaxBackoff {
			backoff = b.MaxBackoff
		}
	}
}

func (b *Binance) session(ctx context.Context) error {
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sub, err := subscribeMessage(b.streams(), time.Now().Unix())
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	b.log.Info().Str("url", b.url).Int("symbols", len(b.symbols)).Msg("stream connected")

	conn.SetReadDeadline(time.Now().Add(b.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.ReadTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go b.ping(conn, pingDone)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(b.ReadTimeout))

		tick, ok, err := parseMiniTicker(raw)
		if err != nil {
			b.log.Debug().Err(err).Msg("skip message")
			continue
		}
		if !ok {
			continue
		}
		if sym, known := b.symbols[tick.Symbol]; known {
			tick.Symbol = sym
			b.cache.Set(tick)
		}
	}
}

func (b *Binance) ping(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(b.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (b *Binance) streams() []string {
	out := make([]string, 0, len(b.symbols))
	for ex := range b.symbols {
		out = append(out, strings.ToLower(ex)+"@miniTicker")
	}
	return out
}

// ExchangeSymbol turns "BTC/USDT" into "BTCUSDT".
func ExchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol))
}

func subscribeMessage(streams []string, id int64) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     id,
	})
}

type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// parseMiniTicker decodes a 24hrMiniTicker event. ok is false for other
// messages such as subscription acknowledgements.
func parseMiniTicker(raw []byte) (Tick, bool, error) {
	var m miniTicker
	if err := json.Unmarshal(raw, &m); err != nil {
		return Tick{}, false, fmt.Errorf("decode: %w", err)
	}
	if m.Event != "24hrMiniTicker" {
		return Tick{}, false, nil
	}
	price, err := decimal.NewFromString(m.Close)
	if err != nil {
		return Tick{}, false, fmt.Errorf("close price %q: %w", m.Close, err)
	}
	return Tick{
		Symbol: m.Symbol,
		Time:   time.UnixMilli(m.EventTime).UTC(),
		Price:  price,
	}, true, nil
}
