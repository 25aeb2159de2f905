package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func ollamaServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if r.Method != http.MethodPost || req.Model != "gemma3:1b" || req.Prompt != "hi" || !req.Stream {
			t.Errorf("unexpected request %s %+v", r.Method, req)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, l := range lines {
			fmt.Fprintln(w, l)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaGenerate(t *testing.T) {
	srv := ollamaServer(t,
		`{"response":"Hel","done":false}`,
		``,
		`{"response":"lo","done":false}`,
		`{"response":"!","done":true}`,
		`{"response":"ignored","done":false}`,
	)

	var chunks []string
	o := NewOllama(srv.URL, "gemma3:1b", srv.Client())

	reply, err := o.Generate(context.Background(), "hi", func(s string) { chunks = append(chunks, s) })
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Hello!" {
		t.Errorf("reply = %q, want %q", reply, "Hello!")
	}
	if want := []string{"Hel", "lo", "!"}; !reflect.DeepEqual(chunks, want) {
		t.Errorf("chunks = %q, want %q", chunks, want)
	}
}

func TestOllamaStreamClosedWithoutDone(t *testing.T) {
	srv := ollamaServer(t, `{"response":"a"}`, `{"done":false}`, `{"response":"b"}`)

	reply, err := NewOllama(srv.URL, "gemma3:1b", srv.Client()).Generate(context.Background(), "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if reply != "ab" {
		t.Errorf("reply = %q", reply)
	}
}

func TestOllamaMalformedJSON(t *testing.T) {
	srv := ollamaServer(t, `{"response":"ok"}`, `{not json`)

	reply, err := NewOllama(srv.URL, "gemma3:1b", srv.Client()).Generate(context.Background(), "hi", nil)

	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
	if perr.Line != "{not json" {
		t.Errorf("line = %q", perr.Line)
	}
	if reply != "ok" {
		t.Errorf("partial reply = %q", reply)
	}
}

func TestOllamaBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'x' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "x", srv.Client()).Generate(context.Background(), "hi", nil)

	var terr *TransportError
	if !errors.As(err, &terr) || terr.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want TransportError 404", err)
	}
}

func TestOllamaInlineError(t *testing.T) {
	srv := ollamaServer(t, `{"error":"out of memory"}`)

	_, err := NewOllama(srv.URL, "gemma3:1b", srv.Client()).Generate(context.Background(), "hi", nil)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestOllamaConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllama(url, "gemma3:1b", nil).Generate(context.Background(), "hi", nil)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestOllamaCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := ollamaServer(t)
	_, err := NewOllama(srv.URL, "gemma3:1b", srv.Client()).Generate(ctx, "hi", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
