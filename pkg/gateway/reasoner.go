package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Reasoner is the injected external-deliberation interface of spec §6. It
// must never raise past the deadline baked into ctx; parse failures are
// reported as a structured error rather than a panic.
type Reasoner interface {
	Deliberate(ctx context.Context, text string, hints map[string]string) (ReasonerOutput, error)
}

// ReasonerOutput is the structured answer requested from the reasoner:
// {class, action, confidence, rationale} per spec §4.4.
type ReasonerOutput struct {
	Class      string  `json:"class"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// HTTPReasoner calls an OpenAI/Ollama-compatible chat completion endpoint,
// built on the teacher's shared-transport/APIError idiom (pkg/ml/http.go)
// rather than a one-off http.Client per call.
type HTTPReasoner struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

func NewHTTPReasoner(baseURL, apiKey, model string, timeout time.Duration) *HTTPReasoner {
	return &HTTPReasoner{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		client:  newHTTPClient(timeout),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const reasonerSystemPrompt = `You are a content-safety classifier. Given the user's payload, ` +
	`respond with a single JSON object exactly matching ` +
	`{"class": string, "action": "allow"|"warn"|"block", "confidence": number 0-1, "rationale": string}. ` +
	`No other text.`

func (r *HTTPReasoner) Deliberate(ctx context.Context, text string, hints map[string]string) (ReasonerOutput, error) {
	reqBody := chatRequest{
		Model: r.Model,
		Messages: []chatMessage{
			{Role: "system", Content: reasonerSystemPrompt},
			{Role: "user", Content: text},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return ReasonerOutput{}, newStageError("reasoner", "encode_request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return ReasonerOutput{}, newStageError("reasoner", "build_request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return ReasonerOutput{}, newStageError("reasoner", "unavailable", err)
	}
	defer resp.Body.Close()

	if err := checkResponseWithService(resp, "reasoner"); err != nil {
		return ReasonerOutput{}, newStageError("reasoner", "http_error", err)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return ReasonerOutput{}, newStageError("reasoner", "decode_response", err)
	}
	if len(cr.Choices) == 0 {
		return ReasonerOutput{}, newStageError("reasoner", "empty_response", nil)
	}

	var out ReasonerOutput
	content := cr.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return ReasonerOutput{}, newStageError("reasoner", "parse_failure", err)
	}
	return out, nil
}

const reasonerConservativeFloor = 0.70

// EvaluateReasoner runs the Reasoning Stage (C4): consult the cache (the
// caller does this before invoking EvaluateReasoner, since the cache is
// shared pipeline state, not stage-private), invoke the reasoner under a
// deadline, apply the conservative floor, and fall back to the tentative
// verdict on any failure — never fabricating a block.
func EvaluateReasoner(ctx context.Context, text string, hints map[string]string, reasoner Reasoner, callBudget time.Duration, tentative Verdict) Verdict {
	if reasoner == nil {
		return stageTimeoutVerdict(3, "reason_unavailable", tentative)
	}

	callCtx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	out, err := reasoner.Deliberate(callCtx, text, hints)
	if err != nil {
		return stageTimeoutVerdict(3, "reason_unavailable", tentative)
	}

	class := NormalizeClass(out.Class)
	action := Action(out.Action)
	switch action {
	case ActionAllow, ActionWarn, ActionBlock:
	default:
		return stageTimeoutVerdict(3, "reason_parse_failure", tentative)
	}

	// Conservative floor: a low-confidence block from the one
	// non-deterministic stage is never allowed to stand on its own.
	if action == ActionBlock && out.Confidence < reasonerConservativeFloor {
		action = ActionWarn
	}

	return Verdict{
		Action:       action,
		TierUsed:     3,
		Method:       "reason",
		FailureClass: class,
		Severity:     severityOf(class),
		Confidence:   out.Confidence,
		Explanation:  out.Rationale,
	}
}

// newHTTPClient and checkResponseWithService adapt the teacher's
// pkg/ml/http.go sharedTransport/NewHTTPClient/APIError/
// CheckResponseWithService idiom for this package's own outbound calls.
var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: sharedTransport}
}

type apiError struct {
	StatusCode int
	Body       string
	Service    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

func checkResponseWithService(resp *http.Response, service string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	return &apiError{StatusCode: resp.StatusCode, Body: string(buf[:n]), Service: service}
}
