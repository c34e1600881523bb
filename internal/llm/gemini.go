package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"mend/internal/agent"
	"mend/internal/logging"
	"mend/internal/tasks"
)

// DefaultModel is the Gemini model used when config does not name one.
const DefaultModel = "gemini-2.0-flash"

// Client wraps a Gemini client for patch generation and critique.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewClient creates a Gemini-backed client.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{client: client, model: model, temperature: 0.7}, nil
}

// WithTemperature overrides the sampling temperature.
func (c *Client) WithTemperature(t float64) *Client {
	if t > 0 {
		c.temperature = float32(t)
	}
	return c
}

// WithTimeout bounds every individual model call. Zero means no per-call
// deadline beyond the caller's context.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// generate runs one completion and returns the response text.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: genai.Ptr(c.temperature)},
	)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}
	return resp.Text(), nil
}

// Generator returns the agent.Generator backed by this client.
func (c *Client) Generator() agent.Generator {
	return &generator{client: c}
}

// Critic returns the agent.Critic backed by this client.
func (c *Client) Critic() agent.Critic {
	return &critic{client: c}
}

type generator struct {
	client *Client
}

// Generate produces patch candidates. It degrades to an empty list on any
// internal failure, never returning an error to the cycle.
func (g *generator) Generate(ctx context.Context, pctx agent.PromptContext) ([]agent.Candidate, error) {
	prompt := BuildPatchPrompt(pctx)
	logging.API("Patch generation call: model=%s prompt=%d bytes refine=%v",
		g.client.model, len(prompt), pctx.Feedback != nil)

	text, err := g.client.generate(ctx, prompt)
	if err != nil {
		logging.API("Patch generation failed: %v", err)
		return nil, nil
	}

	candidates := ParseCandidates(text)
	logging.API("Patch generation returned %d candidates", len(candidates))
	return candidates, nil
}

type critic struct {
	client *Client
}

// Critique evaluates a patch. Transport failures return the neutral fail-safe
// critique; unparsable responses come back as rejections.
func (c *critic) Critique(ctx context.Context, task tasks.Task, patchText string) (agent.Critique, error) {
	prompt := BuildCritiquePrompt(task.ProblemStatement, patchText)

	text, err := c.client.generate(ctx, prompt)
	if err != nil {
		logging.API("Critique failed, using neutral verdict: %v", err)
		return agent.NeutralCritique(fmt.Sprintf("critique unavailable: %v", err)), nil
	}

	crit, ok := ParseCritique(text)
	if !ok {
		logging.API("Critique response unparsable for task=%s", task.ID)
	}
	return crit, nil
}
