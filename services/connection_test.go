package services_test

import (
	"bufio"
	"context"
	"encoding/base64"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailconnect/models"
	"mailconnect/services"
)

// silentServer accepts connections, never writes, and reports each
// connection once the client side has closed it.
func silentServer(t *testing.T) (int, <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	closed := make(chan struct{}, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 64)
				for {
					if _, err := conn.Read(buf); err != nil {
						closed <- struct{}{}
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, closed
}

// fakeSMTPServer speaks just enough SMTP for a login and records the
// decoded AUTH PLAIN payload.
func fakeSMTPServer(t *testing.T, extensions ...string) (int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	auths := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		write := func(line string) { conn.Write([]byte(line + "\r\n")) }
		write("220 fake ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "EHLO"):
				lines := append([]string{"fake"}, extensions...)
				for i, ext := range lines {
					sep := "-"
					if i == len(lines)-1 {
						sep = " "
					}
					write("250" + sep + ext)
				}
			case strings.HasPrefix(line, "AUTH PLAIN "):
				payload, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, "AUTH PLAIN "))
				auths <- string(payload)
				write("235 2.7.0 Authentication successful")
			case line == "QUIT":
				write("221 bye")
				return
			default:
				write("502 unsupported")
			}
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, auths
}

func TestNewMailConnectionTesterDefaultsTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, services.NewMailConnectionTester(0).Timeout)
	assert.Equal(t, time.Second, services.NewMailConnectionTester(time.Second).Timeout)
}

func TestMailConnectionTesterUnreachableSMTP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tester := services.NewMailConnectionTester(time.Second)
	err = tester.TestSMTP(context.Background(), models.EmailAccount{
		Email:      "smtp@x.com",
		SMTPServer: "127.0.0.1",
		SMTPPort:   port,
	}, "secret")
	assert.Error(t, err)
}

func TestMailConnectionTesterSilentSMTPClosesConnections(t *testing.T) {
	port, closed := silentServer(t)
	tester := services.NewMailConnectionTester(100 * time.Millisecond)
	account := models.EmailAccount{Email: "smtp@x.com", SMTPServer: "127.0.0.1", SMTPPort: port}

	for i := 0; i < 3; i++ {
		start := time.Now()
		require.Error(t, tester.TestSMTP(context.Background(), account, "secret"))
		assert.Less(t, time.Since(start), 2*time.Second)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d was left open", i+1)
		}
	}
}

func TestMailConnectionTesterHonorsCancellation(t *testing.T) {
	port, closed := silentServer(t)
	tester := services.NewMailConnectionTester(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := tester.TestSMTP(ctx, models.EmailAccount{Email: "smtp@x.com", SMTPServer: "127.0.0.1", SMTPPort: port}, "secret")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was left open")
	}
}

func TestMailConnectionTesterPlainTextSMTP(t *testing.T) {
	port, auths := fakeSMTPServer(t, "AUTH PLAIN")
	tester := services.NewMailConnectionTester(time.Second)

	err := tester.TestSMTP(context.Background(), models.EmailAccount{
		Email:      "smtp@x.com",
		SMTPServer: "127.0.0.1",
		SMTPPort:   port,
		UseTLS:     false,
	}, "secret")
	require.NoError(t, err)
	assert.Equal(t, "\x00smtp@x.com\x00secret", <-auths)
}

func TestMailConnectionTesterRequiresSTARTTLS(t *testing.T) {
	port, _ := fakeSMTPServer(t, "AUTH PLAIN")
	tester := services.NewMailConnectionTester(time.Second)

	err := tester.TestSMTP(context.Background(), models.EmailAccount{
		Email:      "smtp@x.com",
		SMTPServer: "127.0.0.1",
		SMTPPort:   port,
		UseTLS:     true,
	}, "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STARTTLS")
}

func TestMailConnectionTesterIMAPTimeout(t *testing.T) {
	port, closed := silentServer(t)
	tester := services.NewMailConnectionTester(100 * time.Millisecond)

	start := time.Now()
	err := tester.TestIMAP(context.Background(), models.EmailAccount{
		Email:      "imap@x.com",
		IMAPServer: "127.0.0.1",
		IMAPPort:   port,
	}, "secret")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was left open")
	}
}
