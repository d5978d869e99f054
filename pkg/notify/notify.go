// Package notify e-mails account owners about lifecycle events through
// the local sendmail binary. Notification is optional: a cluster config
// without a sendmail path disables it.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/config"
)

// messageTemplate renders the complete RFC 5322 message, headers
// included, for sendmail -t.
const messageTemplate = `To: {{ .Recipients | join ", " }}
From: {{ .From }}
Subject: [{{ .Cluster }}] {{ .Operation }} {{ .Host }}
Message-ID: <{{ .MessageID }}@{{ .Cluster }}>

Cluster {{ .Cluster }} {{ .Operation | replace "_" " " }} event at {{ .Time | date "2006-01-02 15:04:05 MST" }}.

Host:     {{ .Host }}
{{- if .Instance }}
Instance: {{ .Instance }}
{{- end }}
{{- if .Detail }}

{{ .Detail }}
{{- end }}
`

// Event is one lifecycle event worth telling account owners about.
type Event struct {
	// Operation is the lifecycle operation, e.g. power_on or power_off.
	Operation string

	// Host is the affected host.
	Host string

	// Instance is the cloud instance involved, if any.
	Instance string

	// Recipients are the destination addresses.
	Recipients []string

	// Detail is optional free-form context appended to the body.
	Detail string
}

// Notifier renders and sends event mail.
type Notifier struct {
	cfg      *config.NotifyConfig
	cluster  string
	tmpl     *template.Template
	logger   zerolog.Logger
	now      func() time.Time
	sendmail func(ctx context.Context, message []byte) error
}

// New creates a notifier. It returns nil when no sendmail binary is
// configured, which callers treat as notification disabled.
func New(cfg *config.NotifyConfig, cluster string, logger zerolog.Logger) *Notifier {
	if cfg == nil || cfg.Sendmail == "" {
		return nil
	}

	n := &Notifier{
		cfg:     cfg,
		cluster: cluster,
		tmpl:    template.Must(template.New("message").Funcs(sprig.TxtFuncMap()).Parse(messageTemplate)),
		logger:  logger.With().Str("component", "notify").Logger(),
		now:     time.Now,
	}
	n.sendmail = n.runSendmail
	return n
}

// Send renders the event and hands it to sendmail. Events without
// recipients are skipped silently.
func (n *Notifier) Send(ctx context.Context, event *Event) error {
	if len(event.Recipients) == 0 {
		return nil
	}

	var buf bytes.Buffer
	err := n.tmpl.Execute(&buf, map[string]interface{}{
		"Recipients": event.Recipients,
		"From":       n.cfg.From,
		"Cluster":    n.cluster,
		"Operation":  event.Operation,
		"Host":       event.Host,
		"Instance":   event.Instance,
		"Detail":     event.Detail,
		"MessageID":  uuid.NewString(),
		"Time":       n.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to render notification: %w", err)
	}

	if err := n.sendmail(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send notification for %s: %w", event.Host, err)
	}

	n.logger.Debug().
		Str("host", event.Host).
		Str("operation", event.Operation).
		Int("recipients", len(event.Recipients)).
		Msg("Notification sent")

	return nil
}

// runSendmail pipes the message to sendmail -t, which takes recipients
// from the headers.
func (n *Notifier) runSendmail(ctx context.Context, message []byte) error {
	cmd := exec.CommandContext(ctx, n.cfg.Sendmail, "-t")
	cmd.Stdin = bytes.NewReader(message)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("sendmail failed: %w: %s", err, bytes.TrimSpace(output))
	}
	return nil
}
