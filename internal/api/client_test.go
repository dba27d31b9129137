package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Do(t *testing.T) {
	type entry struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}

	var gotMethod, gotPath, gotAuth string
	var gotBody entry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"e1","text":"saved"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var out entry
	if err := c.Do(context.Background(), http.MethodPost, "/api/entries", entry{Text: "draft"}, &out); err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/entries" {
		t.Errorf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody.Text != "draft" {
		t.Errorf("unexpected request body %+v", gotBody)
	}
	if out.ID != "e1" || out.Text != "saved" {
		t.Errorf("unexpected response %+v", out)
	}
}

func TestClient_Do_NilBodyAndOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Do(context.Background(), http.MethodDelete, "/api/entries/e1", nil, nil); err != nil {
		t.Errorf("do: %v", err)
	}
}

func TestClient_Do_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Do(context.Background(), http.MethodGet, "/api/entries/missing", nil, nil); err == nil {
		t.Error("expected error on 404")
	}
}

func TestNew_MissingBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing base URL")
	}
}
