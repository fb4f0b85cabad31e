// Package bus connects the ledger to Redis pub/sub: trade signals come in on
// one channel, position events go out on another.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arnaudstdr/bot-trade/config"
	"github.com/arnaudstdr/bot-trade/ledger"
)

// SignalMessage is the wire form of an inbound signal.
type SignalMessage struct {
	Symbol          string          `json:"symbol"`
	Type            string          `json:"type"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	TakeProfit      decimal.Decimal `json:"tp"`
	StopLoss        decimal.Decimal `json:"sl"`
	ConfidenceScore float64         `json:"confidence"`
	RiskRewardRatio float64         `json:"risk_reward"`
}

// Incoming is a decoded signal for one symbol.
type Incoming struct {
	Symbol string
	Signal ledger.Signal
}

// DecodeSignal parses and checks a signal payload. Prices may be JSON
// numbers or strings.
func DecodeSignal(payload []byte) (Incoming, error) {
	var m SignalMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return Incoming{}, fmt.Errorf("decode signal: %w", err)
	}
	in := Incoming{
		Symbol: strings.TrimSpace(m.Symbol),
		Signal: ledger.Signal{
			Direction:       ledger.Direction(strings.ToUpper(m.Type)),
			EntryPrice:      m.EntryPrice,
			TakeProfit:      m.TakeProfit,
			StopLoss:        m.StopLoss,
			ConfidenceScore: m.ConfidenceScore,
			RiskRewardRatio: m.RiskRewardRatio,
		},
	}
	if in.Symbol == "" {
		return Incoming{}, fmt.Errorf("decode signal: %w: missing symbol", ledger.ErrInvalidSignal)
	}
	if !in.Signal.Direction.Valid() {
		return Incoming{}, fmt.Errorf("decode signal: %w: unknown type %q", ledger.ErrInvalidSignal, m.Type)
	}
	return in, nil
}

// EncodeSignal is the inverse of DecodeSignal.
func EncodeSignal(in Incoming) ([]byte, error) {
	return json.Marshal(SignalMessage{
		Symbol:          in.Symbol,
		Type:            string(in.Signal.Direction),
		EntryPrice:      in.Signal.EntryPrice,
		TakeProfit:      in.Signal.TakeProfit,
		StopLoss:        in.Signal.StopLoss,
		ConfidenceScore: in.Signal.ConfidenceScore,
		RiskRewardRatio: in.Signal.RiskRewardRatio,
	})
}

const (
	EventOpened = "position_opened"
	EventClosed = "position_closed"
)

// Event is published for every opened or closed position.
type Event struct {
	Kind     string          `json:"event"`
	At       time.Time       `json:"at"`
	Position ledger.Position `json:"position"`
}

func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Bus is a Redis pub/sub client bound to the configured channels.
type Bus struct {
	rdb     *redis.Client
	signals string
	events  string
	log     zerolog.Logger
}

func New(cfg config.BusConfig, log zerolog.Logger) *Bus {
	return &Bus{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		signals: cfg.SignalsChannel,
		events:  cfg.EventsChannel,
		log:     log.With().Str("component", "bus").Logger(),
	}
}

func (b *Bus) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (b *Bus) Close() error { return b.rdb.Close() }

// Publish sends e on the events channel.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	payload, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.events, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.events, err)
	}
	return nil
}

// Signals subscribes to the signals channel. Malformed payloads are logged
// and dropped. The returned channel is closed when ctx is done.
func (b *Bus) Signals(ctx context.Context) (<-chan Incoming, error) {
	pubsub := b.rdb.Subscribe(ctx, b.signals)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", b.signals, err)
	}

	out := make(chan Incoming, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				in, err := DecodeSignal([]byte(msg.Payload))
				if err != nil {
					b.log.Warn().Err(err).Str("payload", msg.Payload).Msg("drop signal")
					continue
				}
				select {
				case out <- in:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
