package journal

import (
	"io"
	"os"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

// ReplayRun summarises one replay of recorded ticks for the Org journal.
type ReplayRun struct {
	RunID   string
	Created time.Time
	Dataset string

	Leverage            int
	PositionSizePercent decimal.Decimal

	Start time.Time
	End   time.Time
	Ticks int

	Opened   int
	Declined int
	Trades   int
	Wins     int
	Losses   int

	StartBalance decimal.Decimal
	EndValue     decimal.Decimal
	NetPnl       decimal.Decimal
	ReturnPct    decimal.Decimal
	WinRate      decimal.Decimal
	BestTrade    decimal.Decimal
	WorstTrade   decimal.Decimal

	Notes []string
}

var replayOrgFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var replayOrg = template.Must(template.New("replay").Funcs(replayOrgFuncs).Parse(ReplayOrgTemplate))

// WriteOrg renders r as an Org-mode entry.
func (r ReplayRun) WriteOrg(w io.Writer) error {
	return replayOrg.Execute(w, r)
}

// WriteOrgFile writes the entry to path, replacing any existing file.
func (r ReplayRun) WriteOrgFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteOrg(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const ReplayOrgTemplate = `* REPLAY: {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START:       {{.Start.UTC.Format "2006-01-02 15:04"}}
:END_TIME:    {{.End.UTC.Format "2006-01-02 15:04"}}
:TICKS:       {{.Ticks}}
:LEVERAGE:    {{.Leverage}}x
:SIZE_PCT:    {{.PositionSizePercent.StringFixed 2}}
:START_BAL:   {{.StartBalance.StringFixed 2}}
:END_VALUE:   {{.EndValue.StringFixed 2}}
:NET_PNL:     {{.NetPnl.StringFixed 2}}
:RETURN_PCT:  {{.ReturnPct.StringFixed 2}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{.WinRate.StringFixed 2}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Net P&L:        *{{.NetPnl.StringFixed 2}} USDT*
- Return:         *{{.ReturnPct.StringFixed 2}}%*
- Win Rate:       *{{.WinRate.StringFixed 2}}%*
- Best Trade:     *{{.BestTrade.StringFixed 2}} USDT*
- Worst Trade:    *{{.WorstTrade.StringFixed 2}} USDT*

** Signals
| Outcome  | Count |
|----------+-------|
| Opened   | {{.Opened}} |
| Declined | {{.Declined}} |
| Wins     | {{.Wins}} |
| Losses   | {{.Losses}} |
| Closed   | {{.Trades}} |

{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
