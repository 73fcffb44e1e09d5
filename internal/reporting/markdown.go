package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Signal Performance Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Active Signals: %d | Closed Last 7d: %d\n\n", r.ActiveCount, r.ClosedLastWeek))

	// Timeframe aggregates
	sb.WriteString("## Performance by Timeframe\n\n")
	if len(r.Timeframes) > 0 {
		sb.WriteString("| Timeframe | Signals | Wins | Losses | Partials | WinRate | Total PnL | Mean | Median | Funding | MaxDD% | Avg Duration |\n")
		sb.WriteString("|-----------|---------|------|--------|----------|---------|-----------|------|--------|---------|--------|-------------|\n")
		for _, tf := range r.Timeframes {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.2f | %s |\n",
				tf.Timeframe, tf.Signals, tf.Wins, tf.Losses, tf.Partials,
				tf.WinRate, tf.TotalPnL, tf.MeanPnL, tf.MedianPnL,
				tf.TotalFunding, tf.MaxDrawdown, tf.AvgDuration.Round(time.Second)))
		}
	} else {
		sb.WriteString("No closed signals recorded yet.\n")
	}
	sb.WriteString("\n")

	// Active signals
	sb.WriteString("## Active Signals\n\n")
	if len(r.ActiveSignals) > 0 {
		sb.WriteString("| Signal | Instrument | Direction | Status | Reference | Wallets | Targets | Age |\n")
		sb.WriteString("|--------|------------|-----------|--------|-----------|---------|---------|-----|\n")
		for _, s := range r.ActiveSignals {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %.4f | %d | %d/%d | %s |\n",
				s.SignalID, s.Instrument, s.Direction, s.Status,
				s.ReferencePrice, s.Participants, s.TargetsHit, s.TargetsTotal,
				s.Age.Round(time.Minute)))
		}
	} else {
		sb.WriteString("No active signals.\n")
	}
	sb.WriteString("\n")

	// Recent closes
	sb.WriteString("## Recent Closes\n\n")
	if len(r.RecentCloses) > 0 {
		sb.WriteString("| Signal | Outcome | PnL | Funding | Exit | Duration |\n")
		sb.WriteString("|--------|---------|-----|---------|------|----------|\n")
		for _, c := range r.RecentCloses {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.4f | %.4f | %.4f | %s |\n",
				c.SignalID, c.Outcome, c.PnL, c.FundingCost, c.ExitPrice,
				c.Duration.Round(time.Second)))
		}
	} else {
		sb.WriteString("No closes in the trailing week.\n")
	}
	sb.WriteString("\n")

	// Wallet leaderboard
	sb.WriteString("## Wallet Leaderboard\n\n")
	if len(r.Wallets) > 0 {
		sb.WriteString("| Wallet | Signals | Wins | Losses | Partials | WinRate | Total PnL |\n")
		sb.WriteString("|--------|---------|------|--------|----------|---------|-----------|\n")
		for _, w := range r.Wallets {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %.4f | %.4f |\n",
				w.Wallet, w.Signals, w.Wins, w.Losses, w.Partials, w.WinRate, w.TotalPnL))
		}
	} else {
		sb.WriteString("No wallet history yet.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
