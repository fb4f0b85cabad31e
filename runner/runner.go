// Package runner drives the ledger on a schedule: each scan marks open
// positions to market, reports what closed, then opens positions for the
// signals received since the previous scan.
package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arnaudstdr/bot-trade/bus"
	"github.com/arnaudstdr/bot-trade/config"
	"github.com/arnaudstdr/bot-trade/feed"
	"github.com/arnaudstdr/bot-trade/ledger"
	"github.com/arnaudstdr/bot-trade/report"
)

type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

type Publisher interface {
	Publish(ctx context.Context, e bus.Event) error
}

// ScanResult summarises one scan.
type ScanResult struct {
	Updated int // symbols priced
	Closed  int
	Opened  int
	Skipped int // signals dropped by a gate or declined by the ledger
}

type Runner struct {
	scan     config.ScanConfig
	ledger   *ledger.Ledger
	prices   feed.PriceSource
	notifier Notifier
	pub      Publisher
	loc      *time.Location
	days     map[time.Weekday]bool
	now      func() time.Time
	log      zerolog.Logger

	configured map[string]bool

	scanMu  sync.Mutex
	mu      sync.Mutex
	pending map[string]bus.Incoming

	outMu  sync.Mutex
	outbox []outgoing
}

var _ ledger.Listener = (*Runner)(nil)

// outgoing is a position event waiting to be notified and published.
type outgoing struct {
	kind  string
	title string
	body  string
	pos   ledger.Position
}

func New(cfg *config.Config, l *ledger.Ledger, prices feed.PriceSource, n Notifier, log zerolog.Logger) (*Runner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	days, err := cfg.Scan.TradingHours.Weekdays()
	if err != nil {
		return nil, err
	}
	r := &Runner{
		scan:       cfg.Scan,
		ledger:     l,
		prices:     prices,
		notifier:   n,
		loc:        loc,
		days:       make(map[time.Weekday]bool, len(days)),
		now:        time.Now,
		log:        log.With().Str("component", "runner").Logger(),
		configured: make(map[string]bool, len(cfg.Scan.Symbols)),
		pending:    make(map[string]bus.Incoming),
	}
	for _, d := range days {
		r.days[d] = true
	}
	for _, s := range cfg.Scan.Symbols {
		r.configured[s] = true
	}
	l.SetListener(r)
	return r, nil
}

// PositionOpened queues the opened message. The ledger calls it outside its
// lock, so reading the account here is safe.
func (r *Runner) PositionOpened(p ledger.Position) {
	body := report.Opened(p, r.ledger.Account(), len(r.ledger.OpenPositions()), r.ledger.Config().MaxOpenPositions)
	r.enqueue(outgoing{kind: bus.EventOpened, title: "Position opened: " + p.Symbol, body: body, pos: p})
}

func (r *Runner) PositionClosed(p ledger.Position) {
	body := report.Closed(p, r.ledger.Statistics())
	r.enqueue(outgoing{kind: bus.EventClosed, title: "Position closed: " + p.Symbol, body: body, pos: p})
}

func (r *Runner) enqueue(o outgoing) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	r.outbox = append(r.outbox, o)
}

// flush notifies and publishes the queued position events in order.
func (r *Runner) flush(ctx context.Context) {
	r.outMu.Lock()
	out := r.outbox
	r.outbox = nil
	r.outMu.Unlock()

	for _, o := range out {
		r.notify(ctx, o.title, o.body)
		r.publish(ctx, o.kind, o.pos)
	}
}

// SetPublisher makes the runner publish position events.
func (r *Runner) SetPublisher(p Publisher) { r.pub = p }

// Submit queues a signal for the next scan. A newer signal for the same
// symbol replaces the queued one.
func (r *Runner) Submit(in bus.Incoming) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[in.Symbol] = in
}

func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// InTradingHours reports whether positions may be opened at t.
func (r *Runner) InTradingHours(t time.Time) bool {
	th := r.scan.TradingHours
	if !th.Enabled {
		return true
	}
	local := t.In(r.loc)
	if !r.days[local.Weekday()] {
		return false
	}
	h := local.Hour()
	return h >= th.Start && h < th.End
}

// Scan runs one cycle. Scans never overlap.
func (r *Runner) Scan(ctx context.Context) ScanResult {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	var res ScanResult
	for _, sym := range r.symbols() {
		price, err := r.prices.Price(ctx, sym)
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", sym).Msg("no price")
			continue
		}
		res.Updated++

		n, err := r.ledger.OnPriceUpdate(sym, price)
		if err != nil {
			r.log.Error().Err(err).Str("symbol", sym).Msg("price update")
		}
		res.Closed += n
	}
	r.flush(ctx)

	for _, in := range r.drain() {
		if r.open(in) {
			res.Opened++
		} else {
			res.Skipped++
		}
	}
	r.flush(ctx)

	r.log.Info().
		Int("updated", res.Updated).
		Int("closed", res.Closed).
		Int("opened", res.Opened).
		Int("skipped", res.Skipped).
		Msg("scan done")
	return res
}

func (r *Runner) open(in bus.Incoming) bool {
	log := r.log.With().Str("symbol", in.Symbol).Str("type", string(in.Signal.Direction)).Logger()

	// Only configured symbols are priced by the feed.
	if !r.configured[in.Symbol] {
		log.Info().Msg("signal dropped: symbol not in scan.symbols")
		return false
	}
	if !r.InTradingHours(r.now()) {
		log.Info().Msg("signal dropped outside trading hours")
		return false
	}
	if in.Signal.ConfidenceScore < r.scan.MinConfidence {
		log.Info().Float64("confidence", in.Signal.ConfidenceScore).Msg("signal dropped: low confidence")
		return false
	}
	if in.Signal.RiskRewardRatio < r.scan.MinRiskReward {
		log.Info().Float64("risk_reward", in.Signal.RiskRewardRatio).Msg("signal dropped: low risk/reward")
		return false
	}
	if r.scan.OnePositionPerSymbol && r.ledger.HasOpenPosition(in.Symbol) {
		log.Info().Msg("signal dropped: position already open")
		return false
	}

	p, reason, err := r.ledger.Open(in.Signal, in.Symbol)
	if err != nil && p == nil {
		log.Error().Err(err).Msg("open")
		return false
	}
	if err != nil {
		log.Error().Err(err).Msg("open not persisted")
	}
	if p == nil {
		log.Info().Str("reason", reason).Msg("open declined")
		return false
	}
	return true
}

// symbols lists configured symbols plus any symbol with an open position.
func (r *Runner) symbols() []string {
	seen := make(map[string]bool, len(r.scan.Symbols))
	out := make([]string, 0, len(r.scan.Symbols))
	for _, s := range r.scan.Symbols {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, p := range r.ledger.OpenPositions() {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	return out
}

func (r *Runner) drain() []bus.Incoming {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]bus.Incoming, 0, len(r.pending))
	for _, in := range r.pending {
		out = append(out, in)
	}
	r.pending = make(map[string]bus.Incoming)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *Runner) notify(ctx context.Context, title, msg string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, title, msg); err != nil {
		r.log.Warn().Err(err).Str("title", title).Msg("notify")
	}
}

func (r *Runner) publish(ctx context.Context, kind string, p ledger.Position) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, bus.Event{Kind: kind, At: r.now().UTC(), Position: p}); err != nil {
		r.log.Warn().Err(err).Str("event", kind).Msg("publish")
	}
}

// Run scans once immediately, then on the configured schedule, until ctx
// is cancelled. Signals received on signals are queued for the next scan;
// signals may be nil.
func (r *Runner) Run(ctx context.Context, signals <-chan bus.Incoming) error {
	c := cron.New(
		cron.WithLocation(r.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(r.scan.Schedule, func() { r.Scan(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", r.scan.Schedule, err)
	}

	st := r.ledger.Statistics()
	r.notify(ctx, "bot-trade started", fmt.Sprintf(
		"Paper trading started\nSymbols: %d\nSchedule: %s\nBalance: %s USDT\nOpen positions: %d",
		len(r.scan.Symbols), r.scan.Schedule, st.FreeBalance.StringFixed(2), st.OpenPositions))
	r.log.Info().Str("schedule", r.scan.Schedule).Strs("symbols", r.scan.Symbols).Msg("runner started")

	r.Scan(ctx)
	c.Start()

	g, gctx := errgroup.WithContext(ctx)
	if signals != nil {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case in, ok := <-signals:
					if !ok {
						return nil
					}
					r.log.Debug().Str("symbol", in.Symbol).Msg("signal queued")
					r.Submit(in)
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		<-c.Stop().Done()
		return nil
	})
	err := g.Wait()

	st = r.ledger.Statistics()
	// ctx is already done; give the final message its own deadline.
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.notify(sctx, "bot-trade stopped", fmt.Sprintf(
		"Paper trading stopped\nPortfolio: %s USDT (ROI %s%%)\nOpen positions: %d\nClosed trades: %d",
		st.TotalPortfolioValue.StringFixed(2), st.ROI.StringFixed(2), st.OpenPositions, st.TotalTrades))
	r.log.Info().Msg("runner stopped")
	return err
}
