package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/crew/config"
	"github.com/mohammad-safakhou/crew/internal/capability"
	"github.com/mohammad-safakhou/crew/internal/contract"
	"github.com/mohammad-safakhou/crew/internal/progress"
	"github.com/mohammad-safakhou/crew/internal/telemetry"
	"github.com/mohammad-safakhou/crew/provider"
)

const planPromptTemplate = `You are a planning assistant for a team of worker agents.

Available capabilities:
%s

User request:
%s

Decide which capabilities, in order, are needed to fulfill the request.
Respond with a single JSON object of the form {"steps": ["capability", ...]}.
Use only capability tokens from the list above. If the request needs no
worker at all, respond with {"steps": []}. Do not add any other keys.`

const answerPromptTemplate = `Answer the user's request directly and concisely.

User request:
%s`

// PlanOutcome is what the planner produced for one request: either an
// ordered plan, or a direct answer when no delegation is needed.
type PlanOutcome struct {
	Steps        progress.Plan
	Direct       bool
	DirectAnswer string
}

// Planner turns a user request into an ordered capability plan using an
// LLM. Plans are validated against the discovered vocabulary before the
// dispatch loop ever sees them.
type Planner struct {
	provider  provider.Provider
	routing   config.LLMRoutingConfig
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewPlanner creates a planner backed by the given provider.
func NewPlanner(p provider.Provider, routing config.LLMRoutingConfig, tel *telemetry.Telemetry, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{provider: p, routing: routing, telemetry: tel, logger: logger}
}

// Plan asks the model for an ordered capability plan. An empty plan, or
// an empty capability vocabulary, short-circuits to a direct answer.
// A plan naming a token outside the vocabulary fails with ErrInvalidPlan
// wrapped; nothing is dispatched in that case.
func (p *Planner) Plan(ctx context.Context, request string, available []capability.Capability) (PlanOutcome, error) {
	if len(available) == 0 {
		p.logger.Printf("no capabilities available, answering directly")
		answer, err := p.DirectAnswer(ctx, request)
		if err != nil {
			return PlanOutcome{}, err
		}
		return PlanOutcome{Direct: true, DirectAnswer: answer}, nil
	}

	tokens := make([]string, 0, len(available))
	for _, c := range available {
		tokens = append(tokens, string(c))
	}
	sort.Strings(tokens)

	prompt := fmt.Sprintf(planPromptTemplate, "- "+strings.Join(tokens, "\n- "), request)

	raw, err := p.generate(ctx, prompt, p.planningModel(), "plan")
	if err != nil {
		return PlanOutcome{}, fmt.Errorf("planner generate: %w", err)
	}

	steps, err := parsePlan(raw, available)
	if err != nil {
		return PlanOutcome{}, err
	}

	if len(steps) == 0 {
		p.logger.Printf("planner returned an empty plan, answering directly")
		answer, err := p.DirectAnswer(ctx, request)
		if err != nil {
			return PlanOutcome{}, err
		}
		return PlanOutcome{Direct: true, DirectAnswer: answer}, nil
	}

	p.logger.Printf("plan: %v", steps)
	return PlanOutcome{Steps: steps}, nil
}

// DirectAnswer answers the request without any worker involvement.
func (p *Planner) DirectAnswer(ctx context.Context, request string) (string, error) {
	prompt := fmt.Sprintf(answerPromptTemplate, request)
	answer, err := p.generate(ctx, prompt, p.answeringModel(), "direct_answer")
	if err != nil {
		return "", fmt.Errorf("direct answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func (p *Planner) generate(ctx context.Context, prompt, model, operation string) (string, error) {
	start := time.Now()
	text, inTok, outTok, err := p.provider.GenerateWithTokens(ctx, prompt, model, nil)
	if p.telemetry != nil {
		p.telemetry.RecordPlannerEvent(telemetry.PlannerEvent{
			Model:        model,
			Operation:    operation,
			Duration:     time.Since(start),
			InputTokens:  inTok,
			OutputTokens: outTok,
			Cost:         p.provider.CalculateCost(inTok, outTok, model),
			Success:      err == nil,
		})
	}
	return text, err
}

func (p *Planner) planningModel() string {
	if p.routing.Planning != "" {
		return p.routing.Planning
	}
	return p.routing.Fallback
}

func (p *Planner) answeringModel() string {
	if p.routing.Answering != "" {
		return p.routing.Answering
	}
	return p.routing.Fallback
}

// parsePlan extracts {"steps": [...]} from possibly prose-wrapped model
// output and validates every token against the vocabulary.
func parsePlan(raw string, available []capability.Capability) (progress.Plan, error) {
	obj, ok := contract.FirstJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in planner output", ErrInvalidPlan)
	}

	var parsed struct {
		Steps []string `json:"steps"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	known := make(map[capability.Capability]bool, len(available))
	for _, c := range available {
		known[c] = true
	}

	plan := make(progress.Plan, 0, len(parsed.Steps))
	for _, s := range parsed.Steps {
		c := capability.Capability(strings.TrimSpace(s))
		if c == "" {
			return nil, fmt.Errorf("%w: empty step token", ErrInvalidPlan)
		}
		if !known[c] {
			return nil, fmt.Errorf("%w: unknown step %q", ErrInvalidPlan, s)
		}
		plan = append(plan, c)
	}
	return plan, nil
}
