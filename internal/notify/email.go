package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"fic-gradebot/internal/components/telemetry"

	"github.com/jordan-wright/email"
)

const report_email_send = "email.send"

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

// Email mirrors messages to the address configured for a user, users
// without one are skipped.
type Email struct {
	smtp       SmtpConfig
	recipients map[int64]string
	tel        telemetry.API
}

func NewEmail(config SmtpConfig, recipients map[int64]string, tel telemetry.API) Email {
	return Email{
		smtp:       config,
		recipients: recipients,
		tel:        telemetry.NewScopedAPI("notify_email", tel),
	}
}

func subjectOf(message string) string {
	first, _, _ := strings.Cut(message, "\n")
	first = strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "").Replace(first)
	return "FIC Grade Bot: " + strings.TrimSpace(first)
}

func (e Email) Send(ctx context.Context, userID int64, message string) error {
	to, ok := e.recipients[userID]
	if !ok || message == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("FIC Grade Bot <%s>", e.smtp.EmailAddress)
	mail.To = []string{to}
	mail.Subject = subjectOf(message)
	mail.HTML = []byte(strings.ReplaceAll(message, "\n", "<br>\n"))

	addr := fmt.Sprintf("%s:%d", e.smtp.Server, e.smtp.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", e.smtp.EmailAddress, e.smtp.Password, e.smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		e.tel.ReportBroken(report_email_send, err, userID)
		return err
	}
	return nil
}
