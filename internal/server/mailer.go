package server

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Mailer delivers verification codes and reset tokens to users. Actual email
// transport is a collaborator concern; the gateway only needs the hook.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
	SendResetToken(ctx context.Context, email, token string) error
}

// LogMailer writes deliveries to the log. Default for development runs.
type LogMailer struct {
	Logger *logrus.Logger
}

func (m *LogMailer) SendOTP(ctx context.Context, email, code string) error {
	m.Logger.WithFields(logrus.Fields{
		"email": email,
		"code":  code,
	}).Info("Verification code issued")
	return nil
}

func (m *LogMailer) SendResetToken(ctx context.Context, email, token string) error {
	m.Logger.WithFields(logrus.Fields{
		"email": email,
		"token": token,
	}).Info("Password reset token issued")
	return nil
}
