package notify

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"fimwatch/internal/drift"
	"fimwatch/internal/fingerprint"
	"fimwatch/internal/report"

	"github.com/stretchr/testify/require"
)

func sampleResult() *drift.ScanResult {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &drift.ScanResult{
		ID:         "scan-1",
		Root:       "/srv/www",
		StartedAt:  at,
		FinishedAt: at.Add(time.Second),
		Unchanged:  []string{"a.txt"},
		Modified:   []string{"b.txt"},
		New:        []string{"c.txt"},
		Missing:    []string{"d.txt"},
		Changes: []drift.Change{
			{Path: "b.txt", Kind: drift.Modified, Baseline: fingerprint.Sum([]byte("2")), Current: fingerprint.Sum([]byte("changed"))},
			{Path: "c.txt", Kind: drift.New, Current: fingerprint.Sum([]byte("3"))},
			{Path: "d.txt", Kind: drift.Missing, Baseline: fingerprint.Sum([]byte("4")), Reason: "permission denied"},
		},
	}
}

func TestSubjectAndBody(t *testing.T) {
	res := sampleResult()

	require.Equal(t, "[ALERT] Integrity drift in /srv/www: 1 modified, 1 new, 1 missing", Subject(res))

	body := Body(res)
	for _, want := range []string{
		"## Modified", "`b.txt`",
		"baseline: `" + fingerprint.Sum([]byte("2")).String() + "`",
		"current: `" + fingerprint.Sum([]byte("changed")).String() + "`",
		"## New", "`c.txt`",
		"## Missing", "`d.txt`", "reason: permission denied",
	} {
		require.Contains(t, body, want)
	}
	// Sections appear in a fixed order.
	require.Less(t, strings.Index(body, "## Modified"), strings.Index(body, "## New"))
	require.Less(t, strings.Index(body, "## New"), strings.Index(body, "## Missing"))
	require.NotContains(t, body, "a.txt")
	require.Contains(t, body, "1 unchanged")

	// A journal entry renders identically.
	require.Equal(t, body, EntryBody(report.NewEntry(res)))
}

func TestMultiAttemptsAll(t *testing.T) {
	var calls int
	boom := errors.New("boom")

	m := Multi{
		Func(func(context.Context, *drift.ScanResult) error { calls++; return boom }),
		Func(func(context.Context, *drift.ScanResult) error { calls++; return nil }),
		Func(func(context.Context, *drift.ScanResult) error {
			calls++
			return &DeliveryError{Notifier: "fake", Err: boom}
		}),
	}
	err := m.Notify(context.Background(), sampleResult())
	require.Equal(t, 3, calls)
	require.ErrorIs(t, err, boom)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "fake", de.Notifier)

	require.NoError(t, Multi{}.Notify(context.Background(), sampleResult()))
}

func TestLogNotifier(t *testing.T) {
	require.NoError(t, LogNotifier{}.Notify(context.Background(), sampleResult()))
}

func TestSMTPConfig(t *testing.T) {
	no := false

	var cases = []struct {
		cfg  SMTPConfig
		mode string
		addr string
	}{
		{SMTPConfig{Host: "mx"}, SecurityStartTLS, "mx:587"},
		{SMTPConfig{Host: "mx", UseTLS: &no}, SecurityTLS, "mx:465"},
		{SMTPConfig{Host: "mx", Security: "NONE"}, SecurityNone, "mx:25"},
		{SMTPConfig{Host: "mx", Port: 2525, Security: "tls"}, SecurityTLS, "mx:2525"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.mode, tc.cfg.Mode())
		require.Equal(t, tc.addr, tc.cfg.Address())
	}

	require.Equal(t, []string{"a@x", "b@y"}, SMTPConfig{To: " a@x, ,b@y "}.Recipients())

	require.NoError(t, SMTPConfig{}.Validate())
	require.EqualError(t, SMTPConfig{Enabled: true}.Validate(), "smtp: host is required")
	require.EqualError(t, SMTPConfig{Enabled: true, Host: "mx", From: "f@x"}.Validate(), "smtp: to_addr is required")
	require.EqualError(t, SMTPConfig{Enabled: true, Host: "mx", From: "f@x", To: "t@x", Security: "ssl3"}.Validate(),
		`smtp: unknown security mode "ssl3"`)
	require.NoError(t, SMTPConfig{Enabled: true, Host: "mx", From: "f@x", To: "t@x"}.Validate())
}

// fakeSMTP accepts one plaintext session and delivers the envelope and
// message it received.
func fakeSMTP(t *testing.T) (string, <-chan string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		tp := textproto.NewConn(conn)
		var session strings.Builder
		_ = tp.PrintfLine("220 fake ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				_ = tp.PrintfLine("500 empty")
				continue
			}
			switch strings.ToUpper(fields[0]) {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 fake")
			case "MAIL", "RCPT":
				session.WriteString(line + "\n")
				_ = tp.PrintfLine("250 ok")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				body, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				session.Write(body)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				got <- session.String()
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()
	return ln.Addr().String(), got
}

func TestSMTPNotifierDelivers(t *testing.T) {
	addr, got := fakeSMTP(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	n := NewSMTPNotifier(SMTPConfig{
		Enabled:  true,
		Host:     host,
		Port:     port,
		From:     "fim@example.com",
		To:       "ops@example.com, sec@example.com",
		Security: SecurityNone,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, n.Notify(context.Background(), sampleResult()))

	var session string
	select {
	case session = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
	require.Contains(t, session, "MAIL FROM:<fim@example.com>")
	require.Contains(t, session, "RCPT TO:<ops@example.com>")
	require.Contains(t, session, "RCPT TO:<sec@example.com>")
	require.Contains(t, session, "Subject: [ALERT] Integrity drift in /srv/www: 1 modified, 1 new, 1 missing")
	require.Contains(t, session, "`b.txt`")
}

func TestSMTPNotifierSkipsCleanScan(t *testing.T) {
	// Nothing listens here; a clean scan must not dial.
	n := NewSMTPNotifier(SMTPConfig{Host: "127.0.0.1", Port: 1, Security: SecurityNone})
	require.NoError(t, n.Notify(context.Background(), &drift.ScanResult{Root: "/x", Unchanged: []string{"a"}}))
}

func TestSMTPNotifierDeliveryError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	n := NewSMTPNotifier(SMTPConfig{
		Host:     "127.0.0.1",
		Port:     addr.Port,
		From:     "f@x",
		To:       "t@x",
		Security: SecurityNone,
		Timeout:  2 * time.Second,
	})
	err = n.Notify(context.Background(), sampleResult())

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "smtp", de.Notifier)
}
