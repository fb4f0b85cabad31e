package bus

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnaudstdr/bot-trade/config"
	"github.com/arnaudstdr/bot-trade/ledger"
)

func TestDecodeSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantErr bool
		want    Incoming
	}{
		{
			name:    "numbers",
			payload: `{"symbol":"BTC/USDT","type":"long","entry_price":100000,"tp":102000,"sl":98000,"confidence":72,"risk_reward":2}`,
			want: Incoming{Symbol: "BTC/USDT", Signal: ledger.Signal{
				Direction:       ledger.Long,
				EntryPrice:      decimal.NewFromInt(100000),
				TakeProfit:      decimal.NewFromInt(102000),
				StopLoss:        decimal.NewFromInt(98000),
				ConfidenceScore: 72,
				RiskRewardRatio: 2,
			}},
		},
		{
			name:    "strings",
			payload: `{"symbol":" ETH/USDT ","type":"SHORT","entry_price":"3000.5","tp":"2900","sl":"3100"}`,
			want: Incoming{Symbol: "ETH/USDT", Signal: ledger.Signal{
				Direction:  ledger.Short,
				EntryPrice: decimal.RequireFromString("3000.5"),
				TakeProfit: decimal.NewFromInt(2900),
				StopLoss:   decimal.NewFromInt(3100),
			}},
		},
		{name: "missing symbol", payload: `{"type":"LONG","entry_price":1}`, wantErr: true},
		{name: "bad type", payload: `{"symbol":"BTC/USDT","type":"HOLD","entry_price":1}`, wantErr: true},
		{name: "not json", payload: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeSignal([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Symbol, got.Symbol)
			assert.Equal(t, tt.want.Signal.Direction, got.Signal.Direction)
			assert.True(t, tt.want.Signal.EntryPrice.Equal(got.Signal.EntryPrice))
			assert.True(t, tt.want.Signal.TakeProfit.Equal(got.Signal.TakeProfit))
			assert.True(t, tt.want.Signal.StopLoss.Equal(got.Signal.StopLoss))
			assert.InDelta(t, tt.want.Signal.ConfidenceScore, got.Signal.ConfidenceScore, 1e-9)
			assert.InDelta(t, tt.want.Signal.RiskRewardRatio, got.Signal.RiskRewardRatio, 1e-9)
		})
	}
}

func TestDecodeSignal_InvalidSignalSentinel(t *testing.T) {
	t.Parallel()

	_, err := DecodeSignal([]byte(`{"symbol":"BTC/USDT","type":"UP"}`))
	assert.ErrorIs(t, err, ledger.ErrInvalidSignal)
}

func TestEncodeSignalRoundTrip(t *testing.T) {
	t.Parallel()

	in := Incoming{Symbol: "SOL/USDT", Signal: ledger.Signal{
		Direction:       ledger.Long,
		EntryPrice:      decimal.RequireFromString("150.25"),
		TakeProfit:      decimal.NewFromInt(160),
		StopLoss:        decimal.NewFromInt(145),
		ConfidenceScore: 66,
	}}
	raw, err := EncodeSignal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"entry_price":"150.25"`)

	got, err := DecodeSignal(raw)
	require.NoError(t, err)
	assert.Equal(t, in.Symbol, got.Symbol)
	assert.True(t, in.Signal.EntryPrice.Equal(got.Signal.EntryPrice))
}

func TestEncodeEvent(t *testing.T) {
	t.Parallel()

	e := Event{
		Kind: EventOpened,
		At:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Position: ledger.Position{
			ID:         "BTCUSDT_X",
			Symbol:     "BTC/USDT",
			Direction:  ledger.Long,
			EntryPrice: decimal.NewFromInt(100000),
			Leverage:   5,
			Status:     ledger.StatusOpen,
		},
	}
	raw, err := EncodeEvent(e)
	require.NoError(t, err)

	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.JSONEq(t, `"position_opened"`, string(generic["event"]))
	assert.JSONEq(t, `"2024-05-01T12:00:00Z"`, string(generic["at"]))

	var pos map[string]interface{}
	require.NoError(t, json.Unmarshal(generic["position"], &pos))
	assert.Equal(t, "BTCUSDT_X", pos["id"])
	assert.Equal(t, "LONG", pos["type"])
}

func TestNewTagsComponentOnce(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	b := New(config.Default().Bus, zerolog.New(&buf))
	defer b.Close()

	b.log.Info().Msg("hello")
	assert.Equal(t, 1, strings.Count(buf.String(), `"component"`))
	assert.Contains(t, buf.String(), `"component":"bus"`)
}
