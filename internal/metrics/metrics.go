// Package metrics exposes Prometheus instrumentation for simulation runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sim holds the collectors updated by the simulation driver.
type Sim struct {
	TicksProcessed    prometheus.Counter
	FillsExecuted     prometheus.Counter
	SharesFilled      prometheus.Counter
	SharesUnfilled    prometheus.Counter
	HaltsTriggered    prometheus.Counter
	QuoteWithdrawals  prometheus.Counter
	CascadeExecutions prometheus.Counter
	HaltPhase         prometheus.Gauge
	BookSpreadBps     prometheus.Gauge
	Inventory         prometheus.Gauge
	UnrealizedPnL     prometheus.Gauge
}

// NewSim registers the simulation collectors on reg. Pass a fresh registry
// per run so concurrent simulations do not collide.
func NewSim(reg prometheus.Registerer, symbol string) *Sim {
	labels := prometheus.Labels{"symbol": symbol}
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "etfsim",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "etfsim",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(g)
		return g
	}

	return &Sim{
		TicksProcessed:    counter("ticks_processed_total", "Simulation ticks completed."),
		FillsExecuted:     counter("fills_executed_total", "Individual fills produced by market orders."),
		SharesFilled:      counter("shares_filled_total", "Shares filled across all market orders."),
		SharesUnfilled:    counter("shares_unfilled_total", "Shares left unfilled by depleted book sides."),
		HaltsTriggered:    counter("halts_triggered_total", "Transitions into the Halted phase."),
		QuoteWithdrawals:  counter("quote_withdrawals_total", "Ticks on which the market maker declined to quote."),
		CascadeExecutions: counter("cascade_executions_total", "Stop-loss orders executed in cascades."),
		HaltPhase:         gauge("halt_phase", "Current halt phase (0=trading 1=limit 2=halted 3=reopening)."),
		BookSpreadBps:     gauge("book_spread_bps", "Current bid-ask spread in basis points."),
		Inventory:         gauge("mm_inventory_shares", "Market maker inventory in shares."),
		UnrealizedPnL:     gauge("mm_unrealized_pnl_usd", "Market maker unrealized P&L in dollars."),
	}
}

// Server serves /metrics for a registry.
type Server struct {
	srv *http.Server
}

// NewServer builds the metrics HTTP server on the given port.
func NewServer(port int, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
