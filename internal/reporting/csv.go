package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders timeframe aggregates as CSV string.
func RenderCSV(rows []TimeframeRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("timeframe,signals,wins,losses,partials,win_rate,")
	sb.WriteString("total_pnl,mean_pnl,median_pnl,total_funding,")
	sb.WriteString("max_drawdown_pct,avg_duration_ms\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d\n",
			r.Timeframe,
			r.Signals,
			r.Wins,
			r.Losses,
			r.Partials,
			r.WinRate,
			r.TotalPnL,
			r.MeanPnL,
			r.MedianPnL,
			r.TotalFunding,
			r.MaxDrawdown,
			r.AvgDuration.Milliseconds(),
		))
	}

	return sb.String()
}
