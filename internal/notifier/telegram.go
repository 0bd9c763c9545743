package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/fetcher"
	"github.com/jobintel/pipeline/internal/model"
)

const telegramBotType = "telegram"

// TelegramNotifier delivers alerts and digests via the Telegram bot API's
// sendMessage method, using the same fetcher.Fetcher connectors use for
// outbound HTTP so rate limiting and retry behavior stay uniform.
type TelegramNotifier struct {
	fetcher fetcher.Fetcher
	baseURL string
	chatID  string
	logger  *zap.Logger
}

// NewTelegramNotifier builds a notifier that posts to chatID via botToken.
func NewTelegramNotifier(f fetcher.Fetcher, botToken, chatID string, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		fetcher: f,
		baseURL: fmt.Sprintf("https://api.telegram.org/bot%s", botToken),
		chatID:  chatID,
		logger:  logger,
	}
}

type telegramSendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	payload, err := json.Marshal(telegramSendMessageRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return eris.Wrap(err, "telegram: marshal request")
	}

	body, status, err := t.fetcher.Post(ctx, t.baseURL+"/sendMessage", payload, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return eris.Wrap(err, "telegram: send message")
	}

	var resp telegramResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return eris.Wrapf(err, "telegram: decode response (status %d)", status)
	}
	if !resp.OK {
		return eris.Errorf("telegram: send failed (status %d): %s", status, resp.Description)
	}

	t.logger.Debug("telegram message sent", zap.Int("status", status))
	return nil
}

func (t *TelegramNotifier) SendAlert(ctx context.Context, job model.CanonicalJob, analysis *model.FitAnalysis) error {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n%s\n", escapeMarkdown(job.Title), escapeMarkdown(job.Company))
	if job.City != "" || job.Country != "" {
		fmt.Fprintf(&b, "%s\n", escapeMarkdown(strings.TrimSpace(job.City+", "+job.Country)))
	}
	fmt.Fprintf(&b, "Score: %.0f (%s) · Mode: %s\n", job.Score, job.ScoreBand, job.WorkMode)
	if analysis != nil {
		fmt.Fprintf(&b, "\nFit: %d/100 (%s)\n%s\n", analysis.FitScore, analysis.Verdict, escapeMarkdown(analysis.Summary))
	}
	fmt.Fprintf(&b, "\n%s", job.URL)

	return t.send(ctx, b.String())
}

func (t *TelegramNotifier) SendSystemAlert(ctx context.Context, message string) error {
	return t.send(ctx, "⚠️ "+escapeMarkdown(message))
}

func (t *TelegramNotifier) SendDigest(ctx context.Context, kind model.DigestKind, jobs []model.CanonicalJob) error {
	if len(jobs) == 0 {
		return t.send(ctx, fmt.Sprintf("*%s digest*\nNo new jobs.", capitalize(string(kind))))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s digest — %d jobs*\n\n", capitalize(string(kind)), len(jobs))
	for _, j := range jobs {
		fmt.Fprintf(&b, "• %s at %s (%.0f) — %s\n", escapeMarkdown(j.Title), escapeMarkdown(j.Company), j.Score, j.URL)
	}

	return t.send(ctx, b.String())
}

// escapeMarkdown escapes characters that would otherwise break Telegram's
// legacy Markdown parse mode.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer("_", `\_`, "*", `\*`, "[", `\[`, "`", "\\`")
	return replacer.Replace(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
