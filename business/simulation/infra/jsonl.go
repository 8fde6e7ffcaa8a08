package infra

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantedu/etf-stress-sim/business/simulation/domain"
)

// tickRecord is the flattened JSONL shape, one object per line. It
// keeps only what downstream analysis needs; the full TickResult stays
// in process.
type tickRecord struct {
	RunID     string `json:"run_id"`
	Tick      int    `json:"tick"`
	Timestamp string `json:"timestamp"`

	BestBid   *decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk   *decimal.Decimal `json:"best_ask,omitempty"`
	SpreadBps *decimal.Decimal `json:"spread_bps,omitempty"`
	LastTrade *decimal.Decimal `json:"last_trade,omitempty"`
	FairValue decimal.Decimal  `json:"fair_value"`
	HaltPhase string           `json:"halt_phase"`
	Queued    int              `json:"queued_orders"`

	SharesFilled   int64 `json:"shares_filled"`
	SharesUnfilled int64 `json:"shares_unfilled"`
	CascadeFills   int   `json:"cascade_fills"`
	Sentinels      int   `json:"sentinel_executions"`

	QuoteWithdrawn bool            `json:"quote_withdrawn"`
	Inventory      int64           `json:"inventory"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	VaR95          float64         `json:"var_95"`

	SpreadPct  decimal.Decimal `json:"arb_spread_pct"`
	Executable bool            `json:"arb_executable"`
	Barrier    string          `json:"arb_barrier,omitempty"`

	KyleLambda *float64 `json:"kyle_lambda,omitempty"`
	Amihud     *float64 `json:"amihud,omitempty"`
	Gaps       int      `json:"liquidity_gaps"`
}

// JSONLReporter streams one JSON object per tick, suitable for
// analysis notebooks or diffing runs.
type JSONLReporter struct {
	w     io.WriteCloser
	enc   *json.Encoder
	runID string
}

func NewJSONLReporter(w io.WriteCloser) *JSONLReporter {
	return &JSONLReporter{
		w:     w,
		enc:   json.NewEncoder(w),
		runID: uuid.NewString(),
	}
}

func (r *JSONLReporter) Report(res domain.TickResult) error {
	rec := tickRecord{
		RunID:     r.runID,
		Tick:      res.Tick,
		Timestamp: res.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		FairValue: res.Snapshot.FairValue,
		HaltPhase: res.HaltPhase.String(),
		Queued:    res.Queued,

		QuoteWithdrawn: res.Quote.Withdrawn(),
		Inventory:      res.Position.Inventory,
		UnrealizedPnL:  res.Mark.UnrealizedPnL,
		RealizedPnL:    res.Mark.RealizedPnL,
		VaR95:          res.Risk.VaR95,

		SpreadPct:  res.Opportunity.SpreadPct,
		Executable: res.Opportunity.Executable,
		Gaps:       len(res.Gaps),
		LastTrade:  res.Snapshot.LastTrade,
	}

	if bid, err := res.Snapshot.BestBid(); err == nil {
		p := bid.Price
		rec.BestBid = &p
	}
	if ask, err := res.Snapshot.BestAsk(); err == nil {
		p := ask.Price
		rec.BestAsk = &p
	}
	if bps, err := res.Snapshot.SpreadBps(); err == nil {
		rec.SpreadBps = &bps
	}
	for _, f := range res.Fills {
		rec.SharesFilled += f.Filled
		rec.SharesUnfilled += f.Unfilled
	}
	for _, c := range res.Cascades {
		rec.CascadeFills++
		if c.Sentinel {
			rec.Sentinels++
		}
	}
	if b, ok := res.Opportunity.PrimaryBarrier(); ok {
		rec.Barrier = b.String()
	}
	if res.Impact != nil {
		rec.KyleLambda = &res.Impact.Lambda
	}
	if res.Amihud != nil {
		rec.Amihud = &res.Amihud.Ratio
	}

	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding tick %d: %w", res.Tick, err)
	}
	return nil
}

func (r *JSONLReporter) Close() error { return r.w.Close() }
