// Package pipeline holds the request/response adapters for the three remote
// stages: speech-to-text, dialogue reasoning, and speech synthesis. Failures
// are terminal for the current turn; retry policy belongs to callers.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// DefaultBaseURL is the loopback fallback when no endpoint is configured.
const DefaultBaseURL = "http://127.0.0.1:8000"

const maxErrorBody = 8 << 10

// TransportError reports a non-2xx response from a pipeline stage.
type TransportError struct {
	Stage  string
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s stage returned %d: %s", e.Stage, e.Status, e.Body)
}

// BaseURLFunc yields the base URL in effect at call time, so endpoint
// reconfiguration applies to the next call without rebuilding the client.
type BaseURLFunc func() string

// StaticBaseURL wraps a fixed base URL.
func StaticBaseURL(base string) BaseURLFunc {
	return func() string { return base }
}

type Client struct {
	http    *http.Client
	baseURL BaseURLFunc
	logger  *slog.Logger
}

func NewClient(baseURL BaseURLFunc, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == nil {
		baseURL = StaticBaseURL(DefaultBaseURL)
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger.With(slog.String("component", "pipeline")),
	}
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

type converseRequest struct {
	Transcript string `json:"transcript"`
}

type converseResponse struct {
	Text string `json:"text"`
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// Transcribe posts a canonical waveform to the ASR stage as a multipart
// upload and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, wavBytes []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := part.Write(wavBytes); err != nil {
		return "", fmt.Errorf("write waveform payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/asr", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	var resp transcribeResponse
	if err := c.do(req, "asr", &resp); err != nil {
		return "", err
	}
	c.logger.Debug("transcription complete", slog.Duration("latency", time.Since(start)))
	return resp.Transcript, nil
}

// Converse sends the transcript to the dialogue stage and returns its reply.
func (c *Client) Converse(ctx context.Context, transcript string) (string, error) {
	req, err := c.jsonRequest(ctx, "/agent", converseRequest{Transcript: transcript})
	if err != nil {
		return "", err
	}
	var resp converseResponse
	if err := c.do(req, "agent", &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Synthesize sends reply text to the TTS stage and returns the raw audio
// payload, assumed playable as delivered.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req, err := c.jsonRequest(ctx, "/tts", synthesizeRequest{Text: text})
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "tts"); err != nil {
		return nil, err
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts payload: %w", err)
	}
	return audio, nil
}

func (c *Client) jsonRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, stage string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", stage, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, stage); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", stage, err)
	}
	return nil
}

func checkStatus(resp *http.Response, stage string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &TransportError{Stage: stage, Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}
