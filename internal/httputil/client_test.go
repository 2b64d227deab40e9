package httputil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(ClientOptions{})

	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, want no overall limit", client.Timeout)
	}
	ua, ok := client.Transport.(*userAgentTransport)
	if !ok {
		t.Fatalf("Transport = %T", client.Transport)
	}
	base := ua.base.(*http.Transport)
	if !base.DisableCompression {
		t.Error("compression must stay disabled")
	}
	if base.ResponseHeaderTimeout != 30*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v", base.ResponseHeaderTimeout)
	}
}

func TestUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	resp, err := NewClient(ClientOptions{UserAgent: "test-agent"}).Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if got != "test-agent" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestRedirectRules(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer target.Close()
	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/file", http.StatusFound)
	}))
	defer redirector.Close()

	// Plain HTTP redirect is refused by default.
	_, err := NewClient(ClientOptions{}).Get(redirector.URL)
	if err == nil || !strings.Contains(err.Error(), "non-HTTPS") {
		t.Errorf("error = %v, want non-HTTPS refusal", err)
	}

	// A LAN mirror configuration allows it.
	resp, err := NewClient(ClientOptions{AllowInsecureRedirects: true, AllowPrivateRedirects: true}).Get(redirector.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()

	// Loopback targets are blocked without AllowPrivateRedirects.
	_, err = NewClient(ClientOptions{AllowInsecureRedirects: true}).Get(redirector.URL)
	if err == nil || !strings.Contains(err.Error(), "loopback") {
		t.Errorf("error = %v, want loopback refusal", err)
	}
}

func TestValidateIP(t *testing.T) {
	blocked := []string{"10.0.0.1", "192.168.1.1", "127.0.0.1", "::1", "169.254.169.254", "224.0.0.1", "0.0.0.0"}
	for _, s := range blocked {
		if err := ValidateIP(net.ParseIP(s), s); err == nil {
			t.Errorf("ValidateIP(%s) = nil, want error", s)
		}
	}
	if err := ValidateIP(net.ParseIP("93.184.216.34"), "example.com"); err != nil {
		t.Errorf("ValidateIP(public) = %v", err)
	}
}
