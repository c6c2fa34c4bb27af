package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-imap/client"

	"mailconnect/models"
	"mailconnect/utils"
)

const (
	smtpImplicitTLSPort = 465
	imapImplicitTLSPort = 993
)

type TestResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ConnectionReport struct {
	SMTP TestResult `json:"smtp"`
	IMAP TestResult `json:"imap"`
}

// OK reports whether both protocols authenticated.
func (r ConnectionReport) OK() bool {
	return r.SMTP.Success && r.IMAP.Success
}

// ConnectionTester authenticates against an account's mail servers.
type ConnectionTester interface {
	TestSMTP(ctx context.Context, account models.EmailAccount, password string) error
	TestIMAP(ctx context.Context, account models.EmailAccount, password string) error
}

// MailConnectionTester dials the real SMTP and IMAP servers.
type MailConnectionTester struct {
	Timeout time.Duration
}

func NewMailConnectionTester(timeout time.Duration) *MailConnectionTester {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MailConnectionTester{Timeout: timeout}
}

// TestSMTP logs in to the account's SMTP server. Port 465 uses implicit
// TLS; otherwise use_tls requires STARTTLS and false keeps the session in
// plain text.
func (t *MailConnectionTester) TestSMTP(ctx context.Context, account models.EmailAccount, password string) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	tlsConfig := &tls.Config{ServerName: account.SMTPServer}
	implicitTLS := account.SMTPPort == smtpImplicitTLSPort
	conn, err := t.dial(ctx, account.SMTPServer, account.SMTPPort, implicitTLS, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()
	defer context.AfterFunc(ctx, func() { conn.Close() })()

	c, err := smtp.NewClient(conn, account.SMTPServer)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer c.Close()

	encrypted := implicitTLS
	if !implicitTLS && account.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("SMTP server does not support STARTTLS")
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
		encrypted = true
	}

	auth := smtp.PlainAuth("", account.Email, password, account.SMTPServer)
	if !encrypted {
		auth = plainTextAuth{username: account.Email, password: password}
	}
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	_ = c.Quit()
	return nil
}

// TestIMAP logs in to the account's IMAP server. Port 993 uses implicit
// TLS; otherwise use_tls upgrades with STARTTLS.
func (t *MailConnectionTester) TestIMAP(ctx context.Context, account models.EmailAccount, password string) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	tlsConfig := &tls.Config{ServerName: account.IMAPServer}
	implicitTLS := account.IMAPPort == imapImplicitTLSPort
	conn, err := t.dial(ctx, account.IMAPServer, account.IMAPPort, implicitTLS, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer conn.Close()
	defer context.AfterFunc(ctx, func() { conn.Close() })()

	c, err := client.New(conn)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer c.Logout()
	// commands replace the connection deadline with their own
	c.Timeout = t.Timeout

	if !implicitTLS && account.UseTLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	if err := c.Login(account.Email, password); err != nil {
		return fmt.Errorf("IMAP authentication failed: %w", err)
	}
	return nil
}

// dial opens the connection and bounds every read and write on it by the
// context deadline.
func (t *MailConnectionTester) dial(ctx context.Context, host string, port int, implicitTLS bool, tlsConfig *tls.Config) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var (
		conn net.Conn
		err  error
	)
	if implicitTLS {
		conn, err = (&tls.Dialer{Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// plainTextAuth is AUTH PLAIN for accounts configured without TLS.
// smtp.PlainAuth refuses to send credentials over an unencrypted connection
// to anything but localhost.
type plainTextAuth struct {
	username string
	password string
}

func (a plainTextAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.username + "\x00" + a.password), nil
}

func (a plainTextAuth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return nil, errors.New("unexpected server challenge")
	}
	return nil, nil
}

// runConnectionTest exercises both protocols and logs the outcome.
func runConnectionTest(ctx context.Context, tester ConnectionTester, account models.EmailAccount, password string) ConnectionReport {
	logContext := map[string]interface{}{
		"user_id":     account.UserID,
		"smtp_server": account.SMTPServer,
		"imap_server": account.IMAPServer,
	}

	var report ConnectionReport
	if err := tester.TestSMTP(ctx, account, password); err != nil {
		report.SMTP.Error = err.Error()
		utils.LogError("smtp_connection_test", err, logContext)
	} else {
		report.SMTP.Success = true
	}

	if err := tester.TestIMAP(ctx, account, password); err != nil {
		report.IMAP.Error = err.Error()
		utils.LogError("imap_connection_test", err, logContext)
	} else {
		report.IMAP.Success = true
	}

	utils.LogEvent("email_account_tested", map[string]interface{}{
		"user_id":      account.UserID,
		"smtp_success": report.SMTP.Success,
		"imap_success": report.IMAP.Success,
	})
	return report
}
