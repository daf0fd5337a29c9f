package proxy

import (
	"net/http"
	"testing"
)

func TestNewClientDirect(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Transport != nil {
		t.Errorf("direct client has custom transport %T", c.Transport)
	}
	if c.Timeout != Timeout {
		t.Errorf("Timeout = %s, want %s", c.Timeout, Timeout)
	}
}

func TestNewClientSocks(t *testing.T) {
	c, err := NewClient("127.0.0.1:1080")
	if err != nil {
		t.Fatal(err)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", c.Transport)
	}
	if tr.DialContext == nil {
		t.Error("socks transport has no DialContext")
	}
}
