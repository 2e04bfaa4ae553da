package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/covwatch/covwatch/internal/alert"
)

// Email delivers alerts over SMTP. STARTTLS/auth is used only when a
// username is configured, matching plain relay setups otherwise.
type Email struct {
	Server   string
	Port     int
	From     string
	To       []string
	Username string
	Password string

	// sendMail is swapped out in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(server string, port int, from string, to []string, username, password string) *Email {
	if server == "" || len(to) == 0 {
		return nil
	}
	if port == 0 {
		port = 587
	}
	return &Email{
		Server:   server,
		Port:     port,
		From:     from,
		To:       to,
		Username: username,
		Password: password,
		sendMail: smtp.SendMail,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, ev alert.Event) error {
	if e == nil || e.Server == "" {
		return errors.New("email disabled")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if e.Username != "" {
		auth = smtp.PlainAuth("", e.Username, e.Password, e.Server)
	}

	msg := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		strings.Join(e.To, ", "), e.From, subject(ev), body(ev))
	addr := fmt.Sprintf("%s:%d", e.Server, e.Port)
	return e.sendMail(addr, auth, e.From, e.To, []byte(msg))
}
