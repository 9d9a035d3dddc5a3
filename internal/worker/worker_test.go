package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/crew/internal/contract"
	"github.com/mohammad-safakhou/crew/internal/dispatch"
)

type staticProvider struct {
	answer string
	err    error
}

func (s *staticProvider) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	return s.answer, s.err
}

func (s *staticProvider) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	return s.answer, 0, 0, s.err
}

func (s *staticProvider) GetAvailableModels() []string { return []string{"m"} }

func (s *staticProvider) CalculateCost(in, out int64, model string) float64 { return 0 }

func newTestService(t *testing.T, handle InvokeFunc) *echo.Echo {
	t.Helper()
	svc := NewService("DirectAnswer", []string{"direct_answer"}, handle)
	e := echo.New()
	svc.Register(e)
	return e
}

func TestCapabilitiesEndpoint(t *testing.T) {
	e := newTestService(t, func(ctx context.Context, s dispatch.RunState) (dispatch.RunState, error) {
		return s, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/capabilities", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Agents []struct {
			AgentName    string   `json:"agent_name"`
			Capabilities []string `json:"capabilities"`
		} `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Agents) != 1 || body.Agents[0].AgentName != "DirectAnswer" {
		t.Fatalf("body = %+v", body)
	}
	if len(body.Agents[0].Capabilities) != 1 || body.Agents[0].Capabilities[0] != "direct_answer" {
		t.Fatalf("capabilities = %v", body.Agents[0].Capabilities)
	}
}

func TestInvokeAppendsContract(t *testing.T) {
	p := &staticProvider{answer: "The capital of France is Paris."}
	e := newTestService(t, DirectAnswer(p, "m", "direct_answer"))

	state := dispatch.RunState{Messages: []dispatch.Message{{Role: "user", Content: "capital of France?"}}}
	payload, _ := json.Marshal(state)
	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out dispatch.RunState
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	latest, ok := out.LastAssistant()
	if !ok {
		t.Fatalf("no assistant message in response")
	}
	c, ok := contract.Decode(latest)
	if !ok || c.CompletedCapability != "direct_answer" {
		t.Fatalf("contract = %+v, %t", c, ok)
	}
	if !strings.Contains(latest, "Paris") {
		t.Fatalf("answer text missing: %q", latest)
	}
}

func TestInvokeHandlerError(t *testing.T) {
	e := newTestService(t, func(ctx context.Context, s dispatch.RunState) (dispatch.RunState, error) {
		return s, errors.New("backend down")
	})

	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"messages":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDirectAnswerNoUserMessage(t *testing.T) {
	p := &staticProvider{answer: "hi"}
	handle := DirectAnswer(p, "m", "direct_answer")
	_, err := handle(context.Background(), dispatch.RunState{})
	if err == nil {
		t.Fatalf("expected error for state without user message")
	}
}
