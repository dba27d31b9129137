package synthesis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Synthesize(t *testing.T) {
	var gotAuth string
	var gotReq synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	audio, err := c.Synthesize(context.Background(), "hello there", false)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Errorf("unexpected audio %q", audio)
	}
	if gotReq.Text != "hello there" || gotReq.Streaming {
		t.Errorf("unexpected request payload %+v", gotReq)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
}

func TestClient_Synthesize_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Synthesize(context.Background(), "hello", false); err == nil {
		t.Error("expected error on non-200 status")
	}
}

func TestClient_Synthesize_EmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Synthesize(context.Background(), "hello", false); err == nil {
		t.Error("expected error on empty audio body")
	}
}

func TestNew_MissingURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing URL")
	}
}
