package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Freeeeeet/mentor_scheduler/internal/config"
	"github.com/Freeeeeet/mentor_scheduler/internal/metrics"
	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Transport отправляет одно HTML письмо
type Transport interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Alerter получает сообщение о письме, которое не удалось отправить
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// SMTPTransport отправляет письма через SMTP сервер
type SMTPTransport struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPTransport(cfg config.SMTP) *SMTPTransport {
	return &SMTPTransport{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := t.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}

	return nil
}

// Deliverable reports whether an address should receive mail. Test accounts
// carry "fake" in their address and are never mailed.
func Deliverable(address string) bool {
	return address != "" && !strings.Contains(address, "fake")
}

// Mailer dispatches notification emails in the background. Failures are
// logged, counted and forwarded to the alerter; they are never retried and
// never reach the caller.
type Mailer struct {
	transport Transport
	alerter   Alerter
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewMailer(transport Transport, alerter Alerter, logger *zap.Logger) *Mailer {
	return &Mailer{
		transport: transport,
		alerter:   alerter,
		logger:    logger,
	}
}

// Dispatch отправляет письмо асинхронно
func (m *Mailer) Dispatch(ctx context.Context, event model.NotificationEvent) {
	if event.Recipient == nil || !Deliverable(event.Recipient.Email) {
		metrics.EmailsSent.WithLabelValues(string(event.Kind), metrics.StatusSkipped).Inc()
		return
	}

	ctx = context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.deliver(ctx, event)
	}()
}

func (m *Mailer) deliver(ctx context.Context, event model.NotificationEvent) {
	to := event.Recipient.Email

	err := m.transport.Send(ctx, to, event.Email.Subject, event.Email.Body)
	if err == nil {
		metrics.EmailsSent.WithLabelValues(string(event.Kind), metrics.StatusSent).Inc()
		m.logger.Info("Email sent",
			zap.String("kind", string(event.Kind)),
			zap.String("to", to),
		)
		return
	}

	metrics.EmailsSent.WithLabelValues(string(event.Kind), metrics.StatusFailed).Inc()
	m.logger.Error("Failed to send email",
		zap.String("kind", string(event.Kind)),
		zap.String("to", to),
		zap.Error(err),
	)

	if m.alerter == nil {
		return
	}
	text := fmt.Sprintf("Email %q (%s) to %s was not sent: %v", event.Email.Subject, event.Kind, to, err)
	if err := m.alerter.Alert(ctx, text); err != nil {
		m.logger.Warn("Failed to send delivery alert", zap.Error(err))
	}
}

// Wait блокируется, пока не завершатся все отправки
func (m *Mailer) Wait() {
	m.wg.Wait()
}

// LogTransport пишет письма в лог вместо отправки; используется, когда SMTP не настроен
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, to, subject, _ string) error {
	t.logger.Info("Email not sent, SMTP is not configured",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
