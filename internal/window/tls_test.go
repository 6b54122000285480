package window

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/framebridge/internal/testutil/testlog"
	"github.com/danmuck/framebridge/internal/testutil/tlstest"
	"github.com/danmuck/framebridge/internal/testutil/wait"
	"github.com/rs/zerolog"
)

func TestTLSValidation(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		err  error
		got  error
	}{
		{"server mutual without tls", ErrTLSRequired, TLSConfig{Mutual: true}.ValidateServer()},
		{"server missing cert", ErrTLSCertFileRequired, TLSConfig{Enabled: true, KeyFile: "k"}.ValidateServer()},
		{"server missing key", ErrTLSKeyFileRequired, TLSConfig{Enabled: true, CertFile: "c"}.ValidateServer()},
		{"server mutual missing ca", ErrTLSCAFileRequired, TLSConfig{Enabled: true, Mutual: true, CertFile: "c", KeyFile: "k"}.ValidateServer()},
		{"client missing ca", ErrTLSCAFileRequired, TLSConfig{Enabled: true}.ValidateClient()},
		{"client mutual missing cert", ErrTLSCertFileRequired, TLSConfig{Enabled: true, Mutual: true, CAFile: "ca"}.ValidateClient()},
	}
	for _, tc := range cases {
		if !errors.Is(tc.got, tc.err) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.err, tc.got)
		}
	}
	if err := (TLSConfig{}).ValidateServer(); err != nil {
		t.Fatalf("disabled tls must validate: %v", err)
	}
	if err := (TLSConfig{Enabled: true, InsecureSkipVerify: true}).ValidateClient(); err != nil {
		t.Fatalf("insecure client must validate: %v", err)
	}
	if cfg, err := (TLSConfig{}).ServerTLS(); cfg != nil || err != nil {
		t.Fatalf("disabled tls must build nothing: %v %v", cfg, err)
	}
}

func TestWebSocketOverMutualTLS(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t)
	serverCert, serverKey := ca.ServerPair(t, "host")
	clientCert, clientKey := ca.ClientPair(t, "frame")

	serverTLS, err := TLSConfig{Enabled: true, Mutual: true, CertFile: serverCert, KeyFile: serverKey, CAFile: ca.CAFile()}.ServerTLS()
	if err != nil {
		t.Fatalf("server tls: %v", err)
	}
	accepted := make(chan *WebSocket, 1)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w, err := Accept(rw, r, Trust{}, zerolog.Nop())
		if err != nil {
			return
		}
		accepted <- w
	}))
	srv.TLS = serverTLS
	srv.StartTLS()
	t.Cleanup(srv.Close)
	url := "wss" + strings.TrimPrefix(srv.URL, "https")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	anonymous, err := TLSConfig{Enabled: true, CAFile: ca.CAFile()}.ClientTLS()
	if err != nil {
		t.Fatalf("client tls: %v", err)
	}
	if _, err := Dial(ctx, url, DialOptions{TLS: anonymous}, zerolog.Nop()); err == nil {
		t.Fatalf("expected dial without client certificate to fail")
	}

	clientTLS, err := TLSConfig{Enabled: true, Mutual: true, CertFile: clientCert, KeyFile: clientKey, CAFile: ca.CAFile()}.ClientTLS()
	if err != nil {
		t.Fatalf("client tls: %v", err)
	}
	client, err := Dial(ctx, url, DialOptions{TLS: clientTLS}, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var server *WebSocket
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatalf("server never accepted")
	}
	defer server.Close()

	var got inbox
	server.Listen(got.add)
	if err := client.PostMessage([]byte("secure")); err != nil {
		t.Fatalf("post: %v", err)
	}
	wait.Until(t, "message over tls", func() bool { return len(got.snapshot()) == 1 })
}
