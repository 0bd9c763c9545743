package analyzer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/resilience"
)

// StreamProvider completes a chat-style prompt and returns the accumulated
// text plus token usage.
type StreamProvider interface {
	Stream(ctx context.Context, apiKey, systemPrompt, userPrompt string) (text string, promptTokens, completionTokens int64, err error)
}

// HTTPStreamProvider talks to an OpenAI-compatible chat-completions
// endpoint with server-sent-event streaming.
type HTTPStreamProvider struct {
	baseURL        string
	model          string
	httpClient     *http.Client
	streamTimeout  time.Duration
	hardCapTimeout time.Duration
}

// NewHTTPStreamProvider creates an HTTPStreamProvider against baseURL/model.
// streamTimeout bounds the gap between chunks (a stall); hardCapTimeout
// bounds the entire call regardless of chunk activity.
func NewHTTPStreamProvider(baseURL, model string, streamTimeout, hardCapTimeout time.Duration) *HTTPStreamProvider {
	return &HTTPStreamProvider{
		baseURL:        baseURL,
		model:          model,
		httpClient:     &http.Client{},
		streamTimeout:  streamTimeout,
		hardCapTimeout: hardCapTimeout,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Stream sends systemPrompt/userPrompt as a streaming chat completion and
// returns the assembled text. Retryable failures (429/5xx, network errors)
// are wrapped as a *resilience.TransientError.
func (p *HTTPStreamProvider) Stream(ctx context.Context, apiKey, systemPrompt, userPrompt string) (string, int64, int64, error) {
	hardCtx, hardCancel := context.WithTimeout(ctx, p.hardCapTimeout)
	defer hardCancel()

	reqBody, err := json.Marshal(chatRequest{
		Model:       p.model,
		Stream:      true,
		Temperature: 0.3,
		MaxTokens:   2048,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", 0, 0, eris.Wrap(err, "analyzer: marshal request")
	}

	req, err := http.NewRequestWithContext(hardCtx, http.MethodPost, p.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, 0, eris.Wrap(err, "analyzer: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, 0, resilience.NewTransientError(eris.Wrap(err, "analyzer: stream request"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		statusErr := eris.Errorf("analyzer: stream status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", 0, 0, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return "", 0, 0, statusErr
	}

	streamCtx, streamCancel := context.WithCancel(hardCtx)
	defer streamCancel()

	stallTimer := time.AfterFunc(p.streamTimeout, streamCancel)
	defer stallTimer.Stop()

	go func() {
		<-streamCtx.Done()
		resp.Body.Close()
	}()

	var builder strings.Builder
	var promptTokens, completionTokens int64

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitSSEEvents)

	for scanner.Scan() {
		stallTimer.Reset(p.streamTimeout)
		event := scanner.Text()
		for _, line := range strings.Split(event, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return builder.String(), promptTokens, completionTokens, nil
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) > 0 {
				builder.WriteString(chunk.Choices[0].Delta.Content)
			}
			if chunk.Usage != nil {
				promptTokens = chunk.Usage.PromptTokens
				completionTokens = chunk.Usage.CompletionTokens
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if streamCtx.Err() != nil {
			return "", 0, 0, resilience.NewTransientError(eris.New("analyzer: stream stalled or timed out"), 0)
		}
		return "", 0, 0, resilience.NewTransientError(eris.Wrap(err, "analyzer: read stream"), 0)
	}

	return builder.String(), promptTokens, completionTokens, nil
}

// splitSSEEvents is a bufio.SplitFunc that breaks a byte stream on blank
// lines ("\n\n"), the standard SSE event boundary.
func splitSSEEvents(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
