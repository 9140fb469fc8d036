package mailer

import (
	"fmt"

	"account_service/internal/models"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *Mailer) Send(msg models.Message) error {
	const op = "mailer.Send"

	mail := gomail.NewMessage()
	mail.SetHeader("To", msg.Email)
	mail.SetHeader("From", m.From)
	mail.SetHeader("Subject", subject(msg.Purpose))

	mail.SetBody("text/plain", body(msg))

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := dialer.DialAndSend(mail); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func subject(purpose string) string {
	switch purpose {
	case models.PurposeVerifyEmail:
		return "Welcome! Please verify your email address"
	case models.PurposeResetPassword:
		return "Reset password"
	case models.PurposePasswordChanged:
		return "Reset password success"
	default:
		return "Notification"
	}
}

func body(msg models.Message) string {
	switch msg.Purpose {
	case models.PurposeVerifyEmail:
		return "Please confirm your email address by following this link: " + msg.Link
	case models.PurposeResetPassword:
		return "To reset your password, follow this link: " + msg.Link
	case models.PurposePasswordChanged:
		return "Your password has been changed. If this wasn't you, reset it immediately."
	default:
		return msg.Link
	}
}
