package email

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"glimpse/internal/shared/config"
)

// Service sends transactional mail. Implemented over SMTP; swapped for a nop
// in tests.
type Service interface {
	SendPasswordResetEmail(to, code string) error
}

type SMTPEmailService struct {
	config config.EmailConfig
	dialer *gomail.Dialer
}

func NewSMTPEmailService(cfg config.EmailConfig) *SMTPEmailService {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)

	return &SMTPEmailService{
		config: cfg,
		dialer: dialer,
	}
}

func (s *SMTPEmailService) SendPasswordResetEmail(to, code string) error {
	subject := "Reset Your Password"
	htmlBody := fmt.Sprintf(`
		<html>
		<body>
			<h2>Password Reset Request</h2>
			<p>We received a request to reset your password. Your reset code is:</p>
			<p><b>%s</b></p>
			<p>This code will expire in 30 minutes.</p>
			<p>If you didn't request a password reset, please ignore this email and your password will remain unchanged.</p>
		</body>
		</html>
	`, code)

	plainBody := fmt.Sprintf(`
Password Reset Request

We received a request to reset your password. Your reset code is:
%s

This code will expire in 30 minutes.

If you didn't request a password reset, please ignore this email and your password will remain unchanged.
	`, code)

	return s.sendEmail(to, subject, htmlBody, plainBody)
}

func (s *SMTPEmailService) sendEmail(to, subject, htmlBody, plainBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.config.FromAddress, s.config.FromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
