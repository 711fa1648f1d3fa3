package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newClient(base string) *Client {
	return NewClient(StaticBaseURL(base), 5*time.Second, newLogger())
}

func TestTranscribeMultipartShape(t *testing.T) {
	payload := []byte("RIFFxxxxWAVEfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/asr" {
			t.Errorf("expected /asr, got %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file field: %v", err)
		}
		defer file.Close()
		if header.Filename != "audio.wav" {
			t.Errorf("expected filename audio.wav, got %s", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("expected audio/wav part, got %s", ct)
		}
		got, _ := io.ReadAll(file)
		if string(got) != string(payload) {
			t.Errorf("payload mismatch")
		}
		json.NewEncoder(w).Encode(map[string]string{"transcript": "hello"})
	}))
	defer srv.Close()

	text, err := newClient(srv.URL).Transcribe(context.Background(), payload)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello" {
		t.Fatalf("expected transcript hello, got %q", text)
	}
}

func TestConverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agent" {
			t.Errorf("expected /agent, got %s", r.URL.Path)
		}
		var req struct {
			Transcript string `json:"transcript"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Transcript != "hello" {
			t.Errorf("expected transcript hello, got %q", req.Transcript)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hi there"})
	}))
	defer srv.Close()

	reply, err := newClient(srv.URL).Converse(context.Background(), "hello")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("expected hi there, got %q", reply)
	}
}

func TestSynthesizeReturnsRawAudio(t *testing.T) {
	audio := []byte{0x52, 0x49, 0x46, 0x46, 0x01, 0x02}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts" {
			t.Errorf("expected /tts, got %s", r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "hi there" {
			t.Errorf("expected text hi there, got %q", req.Text)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio)
	}))
	defer srv.Close()

	got, err := newClient(srv.URL).Synthesize(context.Background(), "hi there")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(got) != string(audio) {
		t.Fatalf("audio payload mismatch")
	}
}

func TestTransportErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "ASR service unavailable")
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Transcribe(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if transportErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", transportErr.Status)
	}
	if transportErr.Body != "ASR service unavailable" {
		t.Fatalf("unexpected body %q", transportErr.Body)
	}
}

func TestBaseURLEvaluatedPerCall(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	base := ""
	client := NewClient(func() string { return base }, 5*time.Second, newLogger())

	if _, err := client.Converse(context.Background(), "x"); err == nil {
		t.Fatal("expected failure against empty base URL")
	}
	base = srv.URL
	if _, err := client.Converse(context.Background(), "x"); err != nil {
		t.Fatalf("converse after reconfiguration: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected exactly one request to reach server, got %d", hits)
	}
}
