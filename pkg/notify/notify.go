// Package notify sends import outcome summaries by email.
package notify

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
)

// Summary is the outcome of one confirmed import run.
type Summary struct {
	RunID     uuid.UUID
	Kind      string
	FileName  string
	State     string
	Created   int
	Rejected  int
	Failed    int
	Warnings  int
	Dropped   int
	Errors    []string
	Total     string
	Submitted time.Time
}

// Sender is the part of the Resend client used here.
type Sender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Config holds the mail settings.
type Config struct {
	APIKey string
	From   string
	To     []string
}

// EmailNotifier mails a summary to the collections team after each run.
type EmailNotifier struct {
	sender Sender
	from   string
	to     []string
	logger *slog.Logger
}

// NewEmailNotifier returns nil when no API key or recipient is configured;
// a nil notifier is valid and does nothing.
func NewEmailNotifier(cfg Config, logger *slog.Logger) *EmailNotifier {
	if cfg.APIKey == "" || len(cfg.To) == 0 {
		return nil
	}
	return NewEmailNotifierWithSender(resend.NewClient(cfg.APIKey).Emails, cfg, logger)
}

// NewEmailNotifierWithSender builds a notifier around any Sender.
func NewEmailNotifierWithSender(sender Sender, cfg Config, logger *slog.Logger) *EmailNotifier {
	from := cfg.From
	if from == "" {
		from = "Cobranza <imports@collections.local>"
	}
	return &EmailNotifier{sender: sender, from: from, to: cfg.To, logger: logger}
}

// NotifyImport sends the summary.
func (n *EmailNotifier) NotifyImport(ctx context.Context, s Summary) error {
	if n == nil {
		return nil
	}

	var body strings.Builder
	if err := summaryTemplate.Execute(&body, s); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}

	resp, err := n.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      n.to,
		Subject: subject(s),
		Html:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("send summary: %w", err)
	}

	n.logger.Info("import summary sent",
		slog.String("run_id", s.RunID.String()),
		slog.String("email_id", resp.Id),
	)
	return nil
}

func subject(s Summary) string {
	label := "Importación de pagos"
	if s.Kind == "invoices" {
		label = "Importación de facturas"
	}
	switch s.State {
	case "succeeded":
		return fmt.Sprintf("%s completada: %d registros", label, s.Created)
	case "partially_failed":
		return fmt.Sprintf("%s con errores: %d de %d registros", label, s.Created, s.Created+s.Rejected+s.Failed)
	default:
		return label + " fallida"
	}
}

var summaryTemplate = template.Must(template.New("summary").Parse(`
<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <h2>{{.FileName}}</h2>
  <p>Corrida {{.RunID}} &middot; {{.Submitted.Format "2006-01-02 15:04"}}</p>
  <table>
    <tr><td>Creados</td><td>{{.Created}}</td></tr>
    <tr><td>Rechazados</td><td>{{.Rejected}}</td></tr>
    <tr><td>Fallidos</td><td>{{.Failed}}</td></tr>
    <tr><td>Advertencias</td><td>{{.Warnings}}</td></tr>
    <tr><td>Filas descartadas</td><td>{{.Dropped}}</td></tr>
    {{if .Total}}<tr><td>Total</td><td>{{.Total}}</td></tr>{{end}}
  </table>
  {{if .Errors}}<ul>{{range .Errors}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body>
</html>
`))
