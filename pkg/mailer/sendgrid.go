package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	defaultSendGridHost = "https://api.sendgrid.com"
	sendEndpoint        = "/v3/mail/send"
	batchEndpoint       = "/v3/mail/batch"
	scheduledEndpoint   = "/v3/user/scheduled_sends"

	// SendGridScheduleWindow is how far ahead SendGrid accepts send_at.
	SendGridScheduleWindow = 72 * time.Hour
)

// SendGridConfig configures the SendGrid dispatcher.
type SendGridConfig struct {
	APIKey    string
	Host      string
	FromName  string
	FromEmail string
	// Templates maps slugs to SendGrid dynamic template ids.
	Templates map[string]string
}

// SendGridDispatcher delivers messages through SendGrid dynamic templates.
// Scheduled messages get one batch per recipient so they can be cancelled
// individually.
type SendGridDispatcher struct {
	cfg    SendGridConfig
	from   *sgmail.Email
	logger *zap.Logger
	now    func() time.Time
}

// NewSendGridDispatcher constructs a SendGrid backed dispatcher.
func NewSendGridDispatcher(cfg SendGridConfig, logger *zap.Logger) *SendGridDispatcher {
	if cfg.Host == "" {
		cfg.Host = defaultSendGridHost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendGridDispatcher{cfg: cfg, from: sgmail.NewEmail(cfg.FromName, cfg.FromEmail), logger: logger, now: time.Now}
}

// ScheduleWindow reports how far ahead a message may be scheduled.
func (d *SendGridDispatcher) ScheduleWindow() time.Duration {
	return SendGridScheduleWindow
}

// Send delivers msg to every recipient.
func (d *SendGridDispatcher) Send(ctx context.Context, msg Message) ([]MessageID, error) {
	templateID, ok := d.cfg.Templates[msg.Template]
	if !ok {
		return nil, fmt.Errorf("sendgrid template for %q not configured", msg.Template)
	}
	recipients := Unique(msg.Recipients)
	if len(recipients) == 0 {
		return nil, nil
	}

	if msg.SendAt == nil {
		m := d.newMail(templateID, msg.Data, recipients...)
		res, err := d.do(ctx, sendEndpoint, sgmail.GetRequestBody(m))
		if err != nil {
			return nil, err
		}
		id := header(res, "X-Message-Id")
		ids := make([]MessageID, 0, len(recipients))
		for _, r := range recipients {
			ids = append(ids, MessageID{Email: r, ID: id})
		}
		return ids, nil
	}

	if msg.SendAt.After(d.now().Add(SendGridScheduleWindow)) {
		return nil, fmt.Errorf("%w: %s", ErrScheduleTooFar, msg.SendAt.UTC().Format(time.RFC3339))
	}
	ids := make([]MessageID, 0, len(recipients))
	for _, r := range recipients {
		batchID, err := d.createBatch(ctx)
		if err != nil {
			return ids, err
		}
		m := d.newMail(templateID, msg.Data, r)
		m.SetSendAt(int(msg.SendAt.Unix()))
		m.SetBatchID(batchID)
		if _, err := d.do(ctx, sendEndpoint, sgmail.GetRequestBody(m)); err != nil {
			return ids, err
		}
		ids = append(ids, MessageID{Email: r, ID: batchID})
	}
	return ids, nil
}

// Cancel cancels the scheduled batches identified by ids.
func (d *SendGridDispatcher) Cancel(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		body, err := json.Marshal(map[string]string{"batch_id": id, "status": "cancel"})
		if err != nil {
			return err
		}
		if _, err := d.do(ctx, scheduledEndpoint, body); err != nil {
			return fmt.Errorf("cancel batch %s: %w", id, err)
		}
	}
	return nil
}

func (d *SendGridDispatcher) newMail(templateID string, data map[string]interface{}, recipients ...string) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(d.from)
	m.SetTemplateID(templateID)
	for _, r := range recipients {
		p := sgmail.NewPersonalization()
		p.AddTos(sgmail.NewEmail("", r))
		for k, v := range data {
			p.SetDynamicTemplateData(k, v)
		}
		m.AddPersonalizations(p)
	}
	return m
}

func (d *SendGridDispatcher) createBatch(ctx context.Context) (string, error) {
	res, err := d.do(ctx, batchEndpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}
	var payload struct {
		BatchID string `json:"batch_id"`
	}
	if err := json.Unmarshal([]byte(res.Body), &payload); err != nil || payload.BatchID == "" {
		return "", fmt.Errorf("create batch: unexpected response %q", res.Body)
	}
	return payload.BatchID, nil
}

func (d *SendGridDispatcher) do(ctx context.Context, endpoint string, body []byte) (*rest.Response, error) {
	req := sendgrid.GetRequest(d.cfg.APIKey, endpoint, d.cfg.Host)
	req.Method = rest.Post
	req.Body = body

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sendgrid %s: %w", endpoint, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		d.logger.Warn("sendgrid request rejected", zap.String("endpoint", endpoint), zap.Int("status", res.StatusCode), zap.String("body", res.Body))
		return nil, fmt.Errorf("sendgrid %s: status %d", endpoint, res.StatusCode)
	}
	return res, nil
}

func header(res *rest.Response, key string) string {
	for k, values := range res.Headers {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(key) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
