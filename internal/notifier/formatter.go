package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"BreakoutScreener/internal/model"
)

// MaxListed caps the symbols listed in one report.
const MaxListed = 30

// FormatScanReport formats a scan result into a Telegram message.
func FormatScanReport(res *model.ScanResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 <b>Breakout scan</b> | %s\n", html.EscapeString(res.Universe))
	fmt.Fprintf(&b, "%s → %s\n\n", res.Start.Format(model.DateLayout), res.End.Format(model.DateLayout))

	if len(res.Passing) == 0 {
		b.WriteString("⚠️ No breakout stocks found.\n")
	} else {
		fmt.Fprintf(&b, "✅ <b>%d breakout stocks found</b>", len(res.Passing))
		if res.RankedBy != "" {
			fmt.Fprintf(&b, " (by %s)", html.EscapeString(res.RankedBy))
		}
		b.WriteString("\n")

		verdicts := make(map[string]model.BreakoutVerdict, len(res.Evaluations))
		for _, v := range res.Evaluations {
			verdicts[v.Symbol] = v
		}
		for i, sym := range res.Passing {
			if i == MaxListed {
				fmt.Fprintf(&b, "  … and %d more\n", len(res.Passing)-MaxListed)
				break
			}
			v := verdicts[sym]
			fmt.Fprintf(&b, "  • <code>%s</code> close %.2f &gt; upper %.2f\n", html.EscapeString(sym), v.Close, v.UpperBand)
		}
	}

	fmt.Fprintf(&b, "\nScanned %d", res.CountScanned)
	if res.CountFailed > 0 {
		fmt.Fprintf(&b, ", %d of %d symbols failed to evaluate", res.CountFailed, res.CountScanned)
	}
	fmt.Fprintf(&b, " | %s\n", res.Elapsed().Round(100*time.Millisecond))
	return b.String()
}

// FormatUniverses lists the universes a scan can target.
func FormatUniverses(names []string) string {
	var b strings.Builder
	b.WriteString("📚 <b>Universes</b>\n")
	for _, n := range names {
		fmt.Fprintf(&b, "  • %s\n", html.EscapeString(n))
	}
	return b.String()
}

// HelpText is the reply to /help and unknown commands.
const HelpText = "🤖 <b>Commands</b>\n" +
	"/scan &lt;universe&gt; - run a breakout scan now\n" +
	"/universes - list available universes\n" +
	"/help - this message"
