package proxy

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClientDirect(t *testing.T) {
	c, err := NewClient("", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if c.Transport != nil || c.Timeout != time.Minute {
		t.Errorf("unexpected direct client %+v", c)
	}
}

func TestNewClientSocks(t *testing.T) {
	c, err := NewClient("127.0.0.1:1080", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Transport.(*http.Transport); !ok {
		t.Errorf("transport = %T, want *http.Transport", c.Transport)
	}
}
