package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"fimwatch/internal/drift"
)

// SMTP connection security modes.
const (
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"
)

// SMTPConfig configures e-mail alerts.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from_addr" json:"from_addr"`
	// To is a comma separated recipient list.
	To string `yaml:"to_addr" json:"to_addr"`
	// Security is one of starttls, tls or none. When empty, UseTLS picks
	// starttls (true or unset) or implicit tls (false).
	Security string `yaml:"security" json:"security"`
	UseTLS   *bool  `yaml:"use_tls" json:"use_tls"`
	// Timeout bounds the whole exchange. Zero means 30s.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Mode returns the effective connection security.
func (c SMTPConfig) Mode() string {
	if c.Security != "" {
		return strings.ToLower(c.Security)
	}
	if c.UseTLS != nil && !*c.UseTLS {
		return SecurityTLS
	}
	return SecurityStartTLS
}

// Address returns host:port, defaulting the port by mode.
func (c SMTPConfig) Address() string {
	port := c.Port
	if port == 0 {
		switch c.Mode() {
		case SecurityTLS:
			port = 465
		case SecurityNone:
			port = 25
		default:
			port = 587
		}
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Recipients splits To.
func (c SMTPConfig) Recipients() []string {
	var out []string
	for _, r := range strings.Split(c.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks an enabled configuration is usable.
func (c SMTPConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("smtp: host is required")
	}
	if c.From == "" {
		return fmt.Errorf("smtp: from_addr is required")
	}
	if len(c.Recipients()) == 0 {
		return fmt.Errorf("smtp: to_addr is required")
	}
	switch c.Mode() {
	case SecurityStartTLS, SecurityTLS, SecurityNone:
	default:
		return fmt.Errorf("smtp: unknown security mode %q", c.Security)
	}
	return nil
}

// SMTPNotifier sends one message per drifted scan.
type SMTPNotifier struct {
	config SMTPConfig
	now    func() time.Time
	// tlsConfig is overridden in tests.
	tlsConfig *tls.Config
}

// NewSMTPNotifier returns an SMTPNotifier.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{
		config:    cfg,
		now:       time.Now,
		tlsConfig: &tls.Config{ServerName: cfg.Host},
	}
}

func (n *SMTPNotifier) Notify(ctx context.Context, res *drift.ScanResult) error {
	if !res.HasDrift() {
		return nil
	}
	timeout := n.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := n.send(ctx, n.message(res)); err != nil {
		return &DeliveryError{Notifier: "smtp", Err: err}
	}
	return nil
}

func (n *SMTPNotifier) send(ctx context.Context, msg []byte) error {
	addr := n.config.Address()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if n.config.Mode() == SecurityTLS {
		conn = tls.Client(conn, n.tlsConfig)
	}

	c, err := smtp.NewClient(conn, n.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	if n.config.Mode() == SecurityStartTLS {
		if err := c.StartTLS(n.tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if n.config.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(n.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range n.config.Recipients() {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return c.Quit()
}

// message builds an RFC 5322 plain text message.
func (n *SMTPNotifier) message(res *drift.ScanResult) []byte {
	var b bytes.Buffer
	from := (&mail.Address{Address: n.config.From}).String()

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.config.Recipients(), ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject(res))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(Body(res), "\n", "\r\n"))
	return b.Bytes()
}
