package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"os"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeVerificationEmail = "email:verify"
	TypeResetEmail        = "email:reset"
)

type EmailPayload struct {
	To    string `json:"to"`
	Code  string `json:"code,omitempty"`
	Token string `json:"token,omitempty"`
}

func NewVerificationTask(to string, code string) (*asynq.Task, error) {
	payload, err := json.Marshal(EmailPayload{To: to, Code: code})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVerificationEmail, payload, asynq.Queue("mail")), nil
}

func NewResetTask(to string, token string) (*asynq.Task, error) {
	payload, err := json.Marshal(EmailPayload{To: to, Token: token})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeResetEmail, payload, asynq.Queue("mail")), nil
}

// Mailer delivers verification codes and reset links over SMTP. Without SMTP
// credentials it runs in demo mode: the secret is surfaced in the server log
// instead of being sent. Insecure, intended for demo deployments only.
type Mailer struct {
	host    string
	port    string
	user    string
	pass    string
	from    string
	baseURL string
	demo    bool
}

func New() *Mailer {
	m := &Mailer{
		host:    os.Getenv("SMTP_HOST"),
		port:    os.Getenv("SMTP_PORT"),
		user:    os.Getenv("SMTP_USER"),
		pass:    os.Getenv("SMTP_PASSWORD"),
		from:    os.Getenv("SMTP_FROM"),
		baseURL: os.Getenv("APP_BASE_URL"),
	}
	if m.port == "" {
		m.port = "587"
	}
	if m.from == "" {
		m.from = m.user
	}
	if m.baseURL == "" {
		m.baseURL = "http://localhost:8000"
	}
	m.demo = m.host == "" || m.user == "" || m.pass == ""
	if m.demo {
		zap.L().Warn("SMTP credentials missing, mailer running in demo mode: secrets will be logged, not sent")
	}
	return m
}

func (m *Mailer) HandleVerificationEmail(ctx context.Context, t *asynq.Task) error {
	var p EmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}
	body := fmt.Sprintf("Your Dadaal verification code is %s. It expires in 10 minutes.", p.Code)
	return m.send(p.To, "Dadaal - Xaqiiji Email-kaaga", body, p.Code)
}

func (m *Mailer) HandleResetEmail(ctx context.Context, t *asynq.Task) error {
	var p EmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}
	link := fmt.Sprintf("%s/auth/reset/%s", m.baseURL, p.Token)
	body := fmt.Sprintf("Reset your Dadaal password: %s\nThe link expires in 1 hour.", link)
	return m.send(p.To, "Dadaal - Password Reset", body, link)
}

func (m *Mailer) send(to string, subject string, body string, secret string) error {
	if m.demo {
		zap.L().Info("demo mode email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.String("secret", secret),
		)
		return nil
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.from, to, subject, body))
	auth := smtp.PlainAuth("", m.user, m.pass, m.host)
	return smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, msg)
}

// NewMux wires the mail task handlers for the asynq server.
func NewMux(m *Mailer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeVerificationEmail, m.HandleVerificationEmail)
	mux.HandleFunc(TypeResetEmail, m.HandleResetEmail)
	return mux
}
