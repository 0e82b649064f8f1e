package manager

import (
	"fmt"
	"strings"

	"adapilot/internal/execution"
	"adapilot/internal/gateway/notifier"
	"adapilot/internal/logger"
	"adapilot/internal/signal"
	"adapilot/internal/tracker"
)

func (m *Manager) notifySignal(sig *signal.TradingSignal) {
	icon := "📈"
	if sig.Type == signal.TypeShort {
		icon = "📉"
	}
	msg := notifier.StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("New %s signal: %s", strings.ToUpper(string(sig.Type)), sig.Pattern),
		Sections: []notifier.MessageSection{
			{
				Title: "Signal",
				Lines: []string{
					fmt.Sprintf("price: %.4f  confidence: %.0f", sig.Price, sig.Confidence),
					fmt.Sprintf("rsi: %.1f  band position: %.2f  volume: %.1fx", sig.Indicators.RSI, sig.Indicators.BBPosition, sig.Indicators.VolumeRatio),
				},
			},
			{
				Title: "Risk",
				Lines: []string{
					fmt.Sprintf("size: %.2f ADA  stop: %.4f  target: %.4f", sig.Risk.PositionSize, sig.Risk.StopLoss, sig.Risk.TakeProfit),
					fmt.Sprintf("expires: %s", sig.ExpiresAt.Format("15:04:05 MST")),
				},
			},
		},
		Footer:    sig.Reasoning,
		Timestamp: sig.Timestamp,
	}
	if err := m.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Errorf("manager: sending signal notification failed: %v", err)
	}
}

func (m *Manager) notifyTransaction(rec tracker.TransactionRecord) {
	// Intermediate states are visible over the API; push only terminal ones.
	if !rec.Status.Terminal() {
		return
	}
	icon := "✅"
	title := "Transaction confirmed"
	if rec.Status == tracker.TxFailed {
		icon = "❌"
		title = "Transaction failed"
	}
	lines := []string{
		fmt.Sprintf("transaction: %s", rec.TransactionID),
		fmt.Sprintf("signal: %s", rec.SignalID),
		fmt.Sprintf("wallet: %s", rec.WalletAddress),
	}
	if rec.LastError != "" {
		lines = append(lines, fmt.Sprintf("last error: %s", rec.LastError))
	}
	msg := notifier.StructuredMessage{
		Icon:      icon,
		Title:     title,
		Sections:  []notifier.MessageSection{{Lines: lines}},
		Timestamp: rec.UpdatedAt,
	}
	if err := m.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Errorf("manager: sending transaction notification failed: %v", err)
	}
}

func (m *Manager) notifyExecution(res *execution.Result, sig *signal.TradingSignal) {
	if res == nil || sig == nil {
		return
	}
	var msg notifier.StructuredMessage
	if res.Success {
		msg = notifier.StructuredMessage{
			Icon:  "🚀",
			Title: "Execution submitted",
			Sections: []notifier.MessageSection{{
				Lines: []string{
					res.Summary,
					fmt.Sprintf("signal: %s  attempts: %d", res.SignalID, res.Attempts),
				},
			}},
			Timestamp: res.SubmittedAt,
		}
	} else {
		errType := "unknown"
		if res.Error != nil {
			errType = string(res.Error.Type)
		}
		msg = notifier.StructuredMessage{
			Icon:  "⚠️",
			Title: "Execution failed",
			Sections: []notifier.MessageSection{{
				Lines: []string{
					res.Summary,
					fmt.Sprintf("signal: %s  error class: %s", res.SignalID, errType),
				},
			}},
		}
	}
	if err := m.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Errorf("manager: sending execution notification failed: %v", err)
	}
}
