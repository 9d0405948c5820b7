package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flightstudio/podscribe/pkg/types"
)

const (
	defaultBaseURL       = "https://api.assemblyai.com"
	defaultClientTimeout = 30 * time.Second
)

// AssemblyAI is an HTTP client for the AssemblyAI transcription API.
type AssemblyAI struct {
	baseURL       string
	apiKey        string
	speakerLabels bool
	httpClient    *http.Client
}

// Compile-time interface satisfaction check.
var _ Client = (*AssemblyAI)(nil)

// NewAssemblyAI creates a client from config. The API key is read from the
// environment variable named in cfg.APIKeyEnv (ASSEMBLYAI_API_KEY by default).
func NewAssemblyAI(cfg types.TranscriberConfig) (*AssemblyAI, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "ASSEMBLYAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("transcriber: %s is not set", keyEnv)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultClientTimeout
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}

	return &AssemblyAI{
		baseURL:       baseURL,
		apiKey:        apiKey,
		speakerLabels: cfg.SpeakerLabels,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

type submitRequest struct {
	AudioURL      string `json:"audio_url"`
	SpeakerLabels bool   `json:"speaker_labels,omitempty"`
}

type transcriptResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"` // queued, processing, completed, error
	Text         string  `json:"text"`
	LanguageCode string  `json:"language_code"`
	Confidence   float64 `json:"confidence"`
	Error        string  `json:"error"`
	Utterances   []struct {
		Speaker    string  `json:"speaker"`
		Text       string  `json:"text"`
		Start      int64   `json:"start"`
		End        int64   `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"utterances"`
}

// SubmitJob submits an audio reference and returns the provider job ID.
func (c *AssemblyAI) SubmitJob(ctx context.Context, audioRef string) (string, error) {
	body, err := json.Marshal(submitRequest{
		AudioURL:      audioRef,
		SpeakerLabels: c.speakerLabels,
	})
	if err != nil {
		return "", fmt.Errorf("transcriber submit: marshaling payload: %w", err)
	}

	var resp transcriptResponse
	if err := c.do(ctx, http.MethodPost, "/v2/transcript", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("transcriber submit: response missing job id")
	}
	return resp.ID, nil
}

// GetStatus polls a job and returns its normalized state.
func (c *AssemblyAI) GetStatus(ctx context.Context, jobID string) (Status, error) {
	var resp transcriptResponse
	if err := c.do(ctx, http.MethodGet, "/v2/transcript/"+jobID, nil, &resp); err != nil {
		return Status{}, err
	}

	switch resp.Status {
	case "queued", "processing":
		return Status{State: types.JobInProgress, Message: resp.Status}, nil
	case "completed":
		return Status{State: types.JobSucceeded, Message: resp.Status}, nil
	case "error":
		return Status{
			State:    types.JobFailed,
			Message:  resp.Error,
			Category: classifyProviderError(resp.Error),
		}, nil
	default:
		return Status{}, fmt.Errorf("transcriber status: unknown status %q", resp.Status)
	}
}

// GetResult collects the transcript for a completed job.
func (c *AssemblyAI) GetResult(ctx context.Context, jobID string) (*types.Transcript, error) {
	var resp transcriptResponse
	if err := c.do(ctx, http.MethodGet, "/v2/transcript/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "completed" {
		return nil, fmt.Errorf("transcriber result: job %s is %s, not completed", jobID, resp.Status)
	}

	tr := &types.Transcript{
		TranscriptID: uuid.NewString(),
		Text:         resp.Text,
		Language:     resp.LanguageCode,
		Confidence:   resp.Confidence,
		GeneratedAt:  time.Now().UTC(),
	}
	for _, u := range resp.Utterances {
		tr.Utterances = append(tr.Utterances, types.Utterance{
			Speaker:    u.Speaker,
			Text:       u.Text,
			StartMS:    u.Start,
			EndMS:      u.End,
			Confidence: u.Confidence,
		})
	}
	return tr, nil
}

func (c *AssemblyAI) do(ctx context.Context, method, path string, body io.Reader, out *transcriptResponse) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("transcriber: creating request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transcriber: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("transcriber: reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("transcriber: returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("transcriber: parsing response: %w", err)
	}
	return nil
}

// classifyProviderError maps AssemblyAI error strings to failure categories.
// Provider-reported transcode/download failures are permanent for the given
// audio reference; everything else is worth retrying.
func classifyProviderError(msg string) types.FailureCategory {
	switch {
	case msg == "":
		return types.FailureTransient
	case containsAny(msg, "download error", "unsupported", "invalid", "not found"):
		return types.FailurePermanent
	case containsAny(msg, "rate limit", "too many requests"):
		return types.FailureRateLimited
	default:
		return types.FailureTransient
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(strings.ToLower(s), sub) {
			return true
		}
	}
	return false
}
