package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// SendMailFunc delivers a composed message. The default dials the server
// with implicit TLS.
type SendMailFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails the report to its own address.
type EmailNotifier struct {
	Address string
	// Code is the SMTP authorization code, not the mailbox password.
	Code   string
	Server string
	Port   int

	SendMail SendMailFunc
	now      func() time.Time
}

// NewEmailNotifier creates a notifier that sends through server:port over
// implicit TLS.
func NewEmailNotifier(address, code, server string, port int) *EmailNotifier {
	if port == 0 {
		port = 465
	}
	return &EmailNotifier{
		Address:  address,
		Code:     code,
		Server:   server,
		Port:     port,
		SendMail: sendMailTLS,
		now:      time.Now,
	}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Enabled() bool {
	return e.Address != "" && e.Code != "" && e.Server != ""
}

func (e *EmailNotifier) Send(ctx context.Context, title, body string) error {
	addr := net.JoinHostPort(e.Server, strconv.Itoa(e.Port))
	auth := smtp.PlainAuth("", e.Address, e.Code, e.Server)
	msg := e.compose(title, body)
	send := e.SendMail
	if send == nil {
		send = sendMailTLS
	}
	if err := send(ctx, addr, auth, e.Address, []string{e.Address}, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

// compose builds a plain-text UTF-8 message with From and To both set to
// the configured address.
func (e *EmailNotifier) compose(title, body string) []byte {
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", e.Address)
	fmt.Fprintf(&b, "To: %s\r\n", e.Address)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", title))
	fmt.Fprintf(&b, "Date: %s\r\n", now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	enc := base64.StdEncoding.EncodeToString([]byte(body))
	for len(enc) > 76 {
		b.WriteString(enc[:76] + "\r\n")
		enc = enc[76:]
	}
	b.WriteString(enc + "\r\n")
	return b.Bytes()
}

func sendMailTLS(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 30 * time.Second},
		Config:    &tls.Config{ServerName: host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(60 * time.Second))
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return c.Quit()
}
