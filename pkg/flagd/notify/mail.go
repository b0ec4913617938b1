package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/matcornic/hermes/v2"
	"gopkg.in/gomail.v2"
)

// MailConfig holds the SMTP server and the branding of the HTML body.
type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	ProductName string
	ProductLink string
}

// MailNotifier sends notifications over SMTP with a plain text body and an
// HTML alternative.
type MailNotifier struct {
	dialer *gomail.Dialer
	hermes hermes.Hermes
}

func NewMailNotifier(cfg MailConfig) *MailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.ProductName == "" {
		cfg.ProductName = "flagd"
	}
	return &MailNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		hermes: hermes.Hermes{
			Product: hermes.Product{
				Name: cfg.ProductName,
				Link: cfg.ProductLink,
			},
		},
	}
}

func (n *MailNotifier) Send(ctx context.Context, msg Message) error {
	m, err := n.compose(msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.dialer.DialAndSend(m)
}

func (n *MailNotifier) compose(msg Message) (*gomail.Message, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("notification has no recipients")
	}

	entries := make([]hermes.Entry, len(msg.Details))
	for i, d := range msg.Details {
		entries[i] = hermes.Entry{Key: d.Key, Value: d.Value}
	}
	html, err := n.hermes.GenerateHTML(hermes.Email{
		Body: hermes.Body{
			Title:      msg.Subject,
			Intros:     []string{msg.Body},
			Dictionary: entries,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rendering notification html: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	m.AddAlternative("text/html", html)
	return m, nil
}
