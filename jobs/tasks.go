package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypePruneTokens is the task type for removing expired tokens.
	TaskTypePruneTokens = "auth:prune_tokens"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewPruneTokensTask constructs the periodic token pruning task.
func NewPruneTokensTask() *asynq.Task {
	return asynq.NewTask(TaskTypePruneTokens, nil)
}

// Mailer delivers queued emails over SMTP.
type Mailer struct {
	Addr   string
	From   string
	Logger *slog.Logger
}

// HandleSendEmail processes TaskTypeSendEmail tasks.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if m.Addr == "" {
		m.Logger.Info("mail delivery skipped, no SMTP host",
			slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return nil
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.From, payload.To, payload.Subject, payload.Body)
	if err := smtp.SendMail(m.Addr, nil, m.From, []string{payload.To}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", payload.To, err)
	}
	return nil
}

// TokenPruneStore deletes expired bearer tokens.
type TokenPruneStore interface {
	DeleteExpiredTokens(ctx context.Context) (int64, error)
	DeleteStaleAccessTokens(ctx context.Context) (int64, error)
}

// VerificationPruneStore deletes expired verification and reset tokens.
type VerificationPruneStore interface {
	DeleteExpiredVerificationTokens(ctx context.Context) (int64, error)
	DeleteExpiredPasswordResetTokens(ctx context.Context) (int64, error)
}

// TokenPruner removes expired auth and verification tokens.
type TokenPruner struct {
	Tokens        TokenPruneStore
	Verifications VerificationPruneStore
	Logger        *slog.Logger
}

// HandlePruneTokens processes TaskTypePruneTokens tasks.
func (p *TokenPruner) HandlePruneTokens(ctx context.Context, _ *asynq.Task) error {
	expired, err := p.Tokens.DeleteExpiredTokens(ctx)
	if err != nil {
		return err
	}
	stale, err := p.Tokens.DeleteStaleAccessTokens(ctx)
	if err != nil {
		return err
	}
	verifications, err := p.Verifications.DeleteExpiredVerificationTokens(ctx)
	if err != nil {
		return err
	}
	resets, err := p.Verifications.DeleteExpiredPasswordResetTokens(ctx)
	if err != nil {
		return err
	}
	p.Logger.Info("pruned expired tokens",
		slog.Int64("tokens", expired),
		slog.Int64("access_tokens", stale),
		slog.Int64("verification_tokens", verifications),
		slog.Int64("reset_tokens", resets))
	return nil
}
