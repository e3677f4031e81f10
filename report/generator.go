package report

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rugguard/rugguard/analysis"
	"github.com/rugguard/rugguard/models"
	"github.com/rugguard/rugguard/trust"
)

// MaxPostLength is the platform post character limit every report must fit.
const MaxPostLength = 280

const footer = "\n#RUGGUARD #DeFiSafety #DYOR"

type TrustLevel string

const (
	TrustHigh     TrustLevel = "HIGH"
	TrustMedium   TrustLevel = "MEDIUM"
	TrustLow      TrustLevel = "LOW"
	TrustCritical TrustLevel = "CRITICAL"
)

// ErrorKind selects the short diagnostic template used when a full analysis
// report can not be produced.
type ErrorKind string

const (
	ErrorAnalysis    ErrorKind = "analysis"
	ErrorNotFound    ErrorKind = "not_found"
	ErrorRateLimited ErrorKind = "rate_limit"
	ErrorAPI         ErrorKind = "api_error"
)

var errorMessages = map[ErrorKind]string{
	ErrorAnalysis:    "❌ Analysis failed - please try again later",
	ErrorNotFound:    "❌ Account not found or private",
	ErrorRateLimited: "⏰ Rate limited - please wait before next request",
	ErrorAPI:         "❌ API error - please try again later",
}

type Generator struct {
	logger *slog.Logger

	now func() time.Time
}

func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return &Generator{
		logger: logger.With("subsystem", "report"),
		now:    time.Now,
	}
}

// Level maps a risk score to a trust level after discounting for trusted
// network position: vouched -4, two or more connections -2, one -1.
func Level(risk float64, score trust.Score) TrustLevel {
	switch {
	case score.Vouched:
		risk = math.Max(0, risk-4)
	case score.Connections >= 2:
		risk = math.Max(0, risk-2)
	case score.Connections >= 1:
		risk = math.Max(0, risk-1)
	}
	switch {
	case risk <= 2:
		return TrustHigh
	case risk <= 4:
		return TrustMedium
	case risk <= 7:
		return TrustLow
	default:
		return TrustCritical
	}
}

func indicator(level TrustLevel) string {
	switch level {
	case TrustHigh:
		return "🟢 HIGH TRUST"
	case TrustMedium:
		return "🟡 MEDIUM TRUST"
	case TrustLow:
		return "🟠 LOW TRUST"
	case TrustCritical:
		return "🔴 HIGH RISK"
	default:
		return "⚪ UNKNOWN"
	}
}

func abbreviateCount(n int64) string {
	switch {
	case n >= 1000000:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	case n >= 1000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func formatAge(ageDays int) string {
	switch {
	case ageDays < 30:
		return fmt.Sprintf("%dd old (NEW)", ageDays)
	case ageDays < 365:
		return fmt.Sprintf("%dd old", ageDays)
	default:
		return fmt.Sprintf("%dy old", ageDays/365)
	}
}

func formatRatio(ratio float64) string {
	switch {
	case ratio >= 10:
		return "Great ratio"
	case ratio >= 1:
		return fmt.Sprintf("%.1f:1 ratio", ratio)
	default:
		return fmt.Sprintf("%.2f:1 ratio", ratio)
	}
}

func metricsLine(acct *models.Account, res *analysis.Result) string {
	parts := []string{
		"📅 " + formatAge(res.AccountAgeDays),
		"👥 " + abbreviateCount(acct.Metrics.Followers) + " followers",
		"📊 " + formatRatio(res.FollowerRatio),
	}
	return strings.Join(parts, " | ") + "\n"
}

func flagsLine(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	shown := flags
	if len(shown) > 2 {
		shown = shown[:2]
	}
	line := "⚠️ " + strings.Join(shown, " | ")
	if len(flags) > 2 {
		line += fmt.Sprintf(" (+%d more)", len(flags)-2)
	}
	return line + "\n"
}

func recommendationLine(recs []string) string {
	if len(recs) == 0 {
		return ""
	}
	return "✅ " + recs[0] + "\n"
}

// Generate renders the full analysis report, never exceeding MaxPostLength.
// Header, trust indicator and footer are mandatory; the remaining sections
// are appended in order while they fit, with a "..." marker when anything
// was dropped and space allows.
func (g *Generator) Generate(acct *models.Account, res *analysis.Result, score trust.Score) string {
	level := Level(res.RiskScore, score)

	header := fmt.Sprintf("🔍 RUGGUARD ANALYSIS: @%s\n", acct.Handle)
	mandatory := header + indicator(level) + "\n"

	var optional []string
	optional = append(optional, metricsLine(acct, res))
	if score.Vouched {
		optional = append(optional, "✅ Vouched by trusted network\n")
	} else if score.Connections > 0 {
		optional = append(optional, fmt.Sprintf("🤝 %d trusted connections\n", score.Connections))
	}
	if line := flagsLine(res.Flags); line != "" {
		optional = append(optional, line)
	}
	if line := recommendationLine(res.Recommendations); line != "" {
		optional = append(optional, line)
	}

	full := mandatory + strings.Join(optional, "") + footer
	if utf8.RuneCountInString(full) <= MaxPostLength {
		g.logger.Info("report generated", "handle", acct.Handle, "level", level)
		return full
	}

	budget := MaxPostLength - utf8.RuneCountInString(mandatory) - utf8.RuneCountInString(footer)
	var kept strings.Builder
	kept.WriteString(mandatory)
	dropped := false
	for _, part := range optional {
		n := utf8.RuneCountInString(part)
		if n > budget {
			dropped = true
			break
		}
		kept.WriteString(part)
		budget -= n
	}
	if dropped && budget >= 5 {
		kept.WriteString("...")
	}
	kept.WriteString(footer)

	g.logger.Info("report generated truncated", "handle", acct.Handle, "level", level)
	return kept.String()
}

// GenerateError renders the short diagnostic reply used when analysis could
// not run at all.
func (g *Generator) GenerateError(handle string, kind ErrorKind) string {
	msg, ok := errorMessages[kind]
	if !ok {
		msg = "❌ Unknown error occurred"
	}
	return fmt.Sprintf("🔍 RUGGUARD: @%s\n%s\n\n#RUGGUARD #DeFiSafety", handle, msg)
}

// GenerateVouched renders the short-circuit report for accounts already
// vouched by the trusted network, skipping the risk narrative entirely.
func (g *Generator) GenerateVouched(acct *models.Account, score trust.Score) string {
	vouchers := score.VouchedBy
	if len(vouchers) > 3 {
		vouchers = vouchers[:3]
	}
	voucherText := strings.Join(vouchers, ", ")
	if len(score.VouchedBy) > 3 {
		voucherText += fmt.Sprintf(" +%d more", len(score.VouchedBy)-3)
	}

	ageDays := 0
	if !acct.CreatedAt.IsZero() {
		ageDays = int(g.now().Sub(acct.CreatedAt).Hours() / 24)
	}
	ageStr := fmt.Sprintf("%dd", ageDays)
	if ageDays >= 365 {
		ageStr = fmt.Sprintf("%dy", ageDays/365)
	}

	return fmt.Sprintf(`🔍 RUGGUARD: @%s
🟢 TRUSTED ACCOUNT
✅ Vouched by: %s
👥 %s followers | 📅 %s old

This account is vouched for by trusted community members.

#RUGGUARD #DeFiSafety #Trusted`,
		acct.Handle, voucherText, abbreviateCount(acct.Metrics.Followers), ageStr)
}
