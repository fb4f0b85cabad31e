package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arnaudstdr/bot-trade/ledger"
)

// ReplayResult counts what a replay did to the ledger.
type ReplayResult struct {
	Start    time.Time // first tick
	End      time.Time // last tick
	Ticks    int
	Opened   int
	Declined int
	Closed   int
}

// ReplayFile replays the CSV file at path. See Replay.
func ReplayFile(ctx context.Context, path string, l *ledger.Ledger, log zerolog.Logger) (ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayResult{}, err
	}
	defer f.Close()
	return Replay(ctx, f, l, log)
}

// Replay feeds recorded ticks through l and applies optional scripted events.
//
// Rows are
//
//	time,symbol,price[,event,arg1,arg2,arg3,arg4,arg5]
//
// with an optional header row whose first column is "time". The ledger
// clock follows the row time. Each tick is applied before its event.
//
// Events (case-insensitive):
//
//	OPEN:   arg1=LONG|SHORT  arg2=takeProfit  arg3=stopLoss  arg4=confidence (optional)  arg5=riskReward (optional)
//	RESET:  no arguments
//
// OPEN enters at the row price.
func Replay(ctx context.Context, r io.Reader, l *ledger.Ledger, log zerolog.Logger) (ReplayResult, error) {
	var res ReplayResult
	var now time.Time
	l.SetClock(func() time.Time { return now })
	defer l.SetClock(time.Now)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		line++
		if len(row) == 0 {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := replayRow(l, row, &now, &res, log); err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
	}
}

func replayRow(l *ledger.Ledger, row []string, now *time.Time, res *ReplayResult, log zerolog.Logger) error {
	if len(row) < 3 {
		return fmt.Errorf("bad row (need at least 3 cols time,symbol,price): %v", row)
	}

	t, err := time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
	if err != nil {
		return fmt.Errorf("bad time %q: %w", row[0], err)
	}
	symbol := strings.TrimSpace(row[1])
	price, err := decimal.NewFromString(strings.TrimSpace(row[2]))
	if err != nil {
		return fmt.Errorf("bad price %q: %w", row[2], err)
	}

	*now = t
	closed, err := l.OnPriceUpdate(symbol, price)
	if err != nil {
		return err
	}
	if res.Ticks == 0 {
		res.Start = t
	}
	res.End = t
	res.Ticks++
	res.Closed += closed

	if len(row) < 4 || strings.TrimSpace(row[3]) == "" {
		return nil
	}
	args := make([]string, 0, len(row)-4)
	for _, a := range row[4:] {
		args = append(args, strings.TrimSpace(a))
	}

	switch event := strings.ToUpper(strings.TrimSpace(row[3])); event {
	case "OPEN":
		sig, err := parseOpenArgs(args, price)
		if err != nil {
			return fmt.Errorf("OPEN: %w", err)
		}
		p, reason, err := l.Open(sig, symbol)
		if err != nil {
			return fmt.Errorf("OPEN: %w", err)
		}
		if p == nil {
			res.Declined++
			log.Info().Str("symbol", symbol).Str("reason", reason).Msg("replay open declined")
			return nil
		}
		res.Opened++
		return nil

	case "RESET":
		return l.Reset()

	default:
		return fmt.Errorf("unknown event %q", event)
	}
}

func parseOpenArgs(args []string, entry decimal.Decimal) (ledger.Signal, error) {
	if len(args) < 3 {
		return ledger.Signal{}, fmt.Errorf("need arg1=direction arg2=takeProfit arg3=stopLoss")
	}
	sig := ledger.Signal{
		Direction:  ledger.Direction(strings.ToUpper(args[0])),
		EntryPrice: entry,
	}
	if !sig.Direction.Valid() {
		return ledger.Signal{}, fmt.Errorf("bad direction %q", args[0])
	}

	var err error
	if sig.TakeProfit, err = decimal.NewFromString(args[1]); err != nil {
		return ledger.Signal{}, fmt.Errorf("bad takeProfit %q: %w", args[1], err)
	}
	if sig.StopLoss, err = decimal.NewFromString(args[2]); err != nil {
		return ledger.Signal{}, fmt.Errorf("bad stopLoss %q: %w", args[2], err)
	}
	if len(args) > 3 && args[3] != "" {
		if sig.ConfidenceScore, err = strconv.ParseFloat(args[3], 64); err != nil {
			return ledger.Signal{}, fmt.Errorf("bad confidence %q: %w", args[3], err)
		}
	}
	if len(args) > 4 && args[4] != "" {
		if sig.RiskRewardRatio, err = strconv.ParseFloat(args[4], 64); err != nil {
			return ledger.Signal{}, fmt.Errorf("bad riskReward %q: %w", args[4], err)
		}
	}
	return sig, nil
}
