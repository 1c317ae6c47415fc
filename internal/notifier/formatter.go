package notifier

import (
	"fmt"
	"strings"

	"DormWatch/internal/model"
)

// Message texts.
const (
	TitleLow = "⚠️ Dorm energy warning ⚠️"
	TitleOK  = "🏠 Dorm energy report 🏠"

	SuffixLow = "⚠️ Energy is running low, please top up soon"
	SuffixOK  = "Energy is sufficient, keep an eye on it"
)

// Title picks the notification title for a reading.
func Title(r model.Reading) string {
	if model.IsLow(r) {
		return TitleLow
	}
	return TitleOK
}

// FormatReport renders both balances with their status labels. With
// escapeDots every '.' in the numbers becomes `\.` for Telegram MarkdownV2.
func FormatReport(r model.Reading, escapeDots bool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💡 light: %s, %s kWh left\n", model.StatusOf(r.Light), formatValue(r.Light, escapeDots)))
	b.WriteString(fmt.Sprintf("❄️ ac: %s, %s kWh left\n\n", model.StatusOf(r.AC), formatValue(r.AC, escapeDots)))
	return b.String()
}

// PlainBody is the push and e-mail body; those channels only fire on low
// balance.
func PlainBody(r model.Reading) string {
	return FormatReport(r, false) + SuffixLow
}

// ChatBody is the Telegram body.
func ChatBody(r model.Reading) string {
	body := FormatReport(r, true)
	if model.IsLow(r) {
		return body + SuffixLow
	}
	return body + SuffixOK
}

// EscapeDots replaces every '.' with `\.`.
func EscapeDots(s string) string {
	return strings.ReplaceAll(s, ".", `\.`)
}

func formatValue(v float64, escapeDots bool) string {
	s := model.FormatBalance(v)
	if escapeDots {
		return EscapeDots(s)
	}
	return s
}
