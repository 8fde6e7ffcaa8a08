// Package ui provides the Bubble Tea dashboard for simulation runs.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
	simApp "github.com/quantedu/etf-stress-sim/business/simulation/app"
	simDomain "github.com/quantedu/etf-stress-sim/business/simulation/domain"
)

// ladderDepth is how many levels each book side shows.
const ladderDepth = 8

// Model is the main Bubble Tea model for the dashboard.
type Model struct {
	symbol string

	ready    bool
	quitting bool
	paused   bool
	width    int
	height   int

	latest  *simDomain.TickResult
	summary *simApp.Summary
	runErr  error

	events   viewport.Model
	feed     []string
	logs     []string
	haltedAt time.Time
}

// New creates a dashboard model for one symbol.
func New(symbol string) Model {
	vp := viewport.New(60, 10)
	return Model{
		symbol: symbol,
		events: vp,
		feed:   make([]string, 0, 64),
		logs:   make([]string, 0, 5),
	}
}

// Init initializes the dashboard.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd drives the halt banner animation.
func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
			return m, nil
		case "up", "k":
			m.events.ScrollUp(1)
			return m, nil
		case "down", "j":
			m.events.ScrollDown(1)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.events.Width = max(40, m.width/2-4)
		m.events.Height = max(6, m.height-18)
		m.ready = true

	case TickMsg:
		return m, tickCmd()

	case TickResultMsg:
		if m.paused {
			return m, nil
		}
		r := msg.Result
		m.latest = &r
		m.appendEvents(r)
		m.events.SetContent(strings.Join(m.feed, "\n"))
		m.events.GotoBottom()
		if r.HaltPhase == bookDomain.PhaseHalted && m.haltedAt.IsZero() {
			m.haltedAt = time.Now()
		}
		if r.HaltPhase == bookDomain.PhaseTrading {
			m.haltedAt = time.Time{}
		}

	case RunDoneMsg:
		s := msg.Summary
		m.summary = &s
		m.runErr = msg.Err

	case LogMsg:
		line := fmt.Sprintf("[%s] %s", msg.Level, msg.Message)
		m.logs = append(m.logs, line)
		if len(m.logs) > 5 {
			m.logs = m.logs[len(m.logs)-5:]
		}
	}

	return m, nil
}

// appendEvents turns a tick's notable outcomes into feed lines.
func (m *Model) appendEvents(r simDomain.TickResult) {
	stamp := r.Timestamp.Format("15:04:05")
	add := func(format string, args ...any) {
		m.feed = append(m.feed, fmt.Sprintf("[%s] ", stamp)+fmt.Sprintf(format, args...))
	}

	for _, f := range r.Fills {
		if f.Filled == 0 && f.Unfilled == 0 {
			continue
		}
		if f.Unfilled > 0 {
			add("%s %d filled @ %s, %d UNFILLED", f.Side, f.Filled, f.VWAP.StringFixed(2), f.Unfilled)
		} else {
			add("%s %d filled @ %s", f.Side, f.Filled, f.VWAP.StringFixed(2))
		}
	}
	for _, c := range r.Cascades {
		if c.Sentinel {
			add("STOP %s -> sentinel %s (no liquidity)", c.TriggerPrice.StringFixed(2), c.ExecutionPrice.StringFixed(2))
		} else {
			add("STOP %s -> executed %s", c.TriggerPrice.StringFixed(2), c.ExecutionPrice.StringFixed(2))
		}
	}
	if r.Quote.Withdrawn() {
		add("maker withdrew: %s (premium %.0f bps)", r.Quote.Reason, r.Quote.PremiumBps)
	}
	if b, ok := r.Opportunity.PrimaryBarrier(); ok && r.Opportunity.Profitable {
		add("arb blocked: %s%% spread, barrier=%s", r.Opportunity.SpreadPct.StringFixed(1), b)
	} else if r.Opportunity.Executable {
		add("arb EXECUTABLE: %s%% spread", r.Opportunity.SpreadPct.StringFixed(1))
	}

	if len(m.feed) > 200 {
		m.feed = m.feed[len(m.feed)-200:]
	}
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "\n  Run saved. Goodbye!\n\n"
	}
	if !m.ready || m.latest == nil {
		return "\n  Waiting for first tick...\n"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf(" %s stress simulation ", m.symbol)))
	b.WriteString("  ")
	b.WriteString(m.renderPhaseBanner())
	b.WriteString("\n\n")

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderLadder(),
		"",
		m.renderPosition(),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		HeaderStyle.Render("EVENTS"),
		m.events.View(),
	)

	if m.width > 100 {
		lb := BoxStyle.Width(m.width/2 - 2).Render(left)
		rb := BoxStyle.Width(m.width/2 - 2).Render(right)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, lb, rb))
	} else {
		b.WriteString(BoxStyle.Width(m.width - 4).Render(left))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(m.width - 4).Render(right))
	}
	b.WriteString("\n")

	if m.summary != nil {
		b.WriteString(m.renderSummary())
		b.WriteString("\n")
	}
	for _, line := range m.logs {
		b.WriteString(MutedValue.Render("  " + line))
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render("q: quit • p: pause • ↑↓: scroll events"))
	return b.String()
}

func (m Model) renderPhaseBanner() string {
	switch m.latest.HaltPhase {
	case bookDomain.PhaseHalted:
		// Blink while halted.
		if time.Now().UnixMilli()/500%2 == 0 {
			return HaltedBanner.Render("⛔ TRADING HALTED")
		}
		return HaltedBanner.Render("   TRADING HALTED")
	case bookDomain.PhaseLimitState:
		return LimitBanner.Render("⚠ LIMIT STATE")
	case bookDomain.PhaseReopening:
		return LimitBanner.Render("REOPENING")
	default:
		return PositiveValue.Render("● trading")
	}
}

// renderLadder shows the top of both book sides around the mid.
func (m Model) renderLadder() string {
	snap := m.latest.Snapshot
	var sb strings.Builder
	sb.WriteString(HeaderStyle.Render("ORDER BOOK"))
	if bps, err := snap.SpreadBps(); err == nil {
		sb.WriteString(MutedValue.Render(fmt.Sprintf("   spread %s bps", bps.StringFixed(1))))
	}
	sb.WriteString("\n")

	asks := snap.Asks
	if len(asks) > ladderDepth {
		asks = asks[:ladderDepth]
	}
	for i := len(asks) - 1; i >= 0; i-- {
		sb.WriteString(AskStyle.Render(fmt.Sprintf("  %10s  x %-8d", asks[i].Price.StringFixed(2), asks[i].Size)))
		sb.WriteString("\n")
	}
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  ---- fair value %s ----", snap.FairValue.StringFixed(2))))
	sb.WriteString("\n")
	bids := snap.Bids
	if len(bids) > ladderDepth {
		bids = bids[:ladderDepth]
	}
	for _, lvl := range bids {
		sb.WriteString(BidStyle.Render(fmt.Sprintf("  %10s  x %-8d", lvl.Price.StringFixed(2), lvl.Size)))
		sb.WriteString("\n")
	}
	if len(m.latest.Gaps) > 0 {
		sb.WriteString(NegativeValue.Render(fmt.Sprintf("  %d air pocket(s) in book", len(m.latest.Gaps))))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderPosition() string {
	r := m.latest
	var sb strings.Builder
	sb.WriteString(HeaderStyle.Render("MARKET MAKER"))
	sb.WriteString("\n")

	pnlStyle := PositiveValue
	if r.Mark.TotalPnL.IsNegative() {
		pnlStyle = NegativeValue
	}
	sb.WriteString(fmt.Sprintf("  inventory %d  hedge %s\n", r.Position.Inventory, r.Position.Hedge))
	sb.WriteString("  pnl ")
	sb.WriteString(pnlStyle.Render(r.Mark.TotalPnL.StringFixed(0)))
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  (unrealized %s)", r.Mark.UnrealizedPnL.StringFixed(0))))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  var95 %.0f  inv %.0f%%  delta %.0f",
		r.Risk.VaR95, r.Risk.InventoryPct, r.Risk.NetDelta)))
	sb.WriteString("\n")

	if q := r.Quote.Quote; q != nil {
		sb.WriteString(fmt.Sprintf("  quoting %s / %s (%.0f bps)\n",
			q.Bid.StringFixed(2), q.Ask.StringFixed(2), q.SpreadBps))
	} else {
		sb.WriteString(NegativeValue.Render("  NO QUOTE"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderSummary() string {
	s := m.summary
	var sb strings.Builder
	sb.WriteString(HeaderStyle.Render("RUN COMPLETE"))
	sb.WriteString(fmt.Sprintf("  ticks %d  halts %d  withdrawals %d  low %s  pnl %s",
		s.Ticks, s.Halts, s.Withdrawals, s.MinTradePrice.StringFixed(2), s.FinalPnL.StringFixed(0)))
	if m.runErr != nil {
		sb.WriteString(NegativeValue.Render(fmt.Sprintf("  error: %v", m.runErr)))
	}
	return sb.String()
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// Run starts the Bubble Tea program.
func Run(symbol string) error {
	Program = tea.NewProgram(New(symbol), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}
