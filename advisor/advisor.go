/*
Package advisor provides the generative-text advisory features: meal
suggestions for a budget and sales insights for the admin dashboard.

Everything here is advisory. The advisor never gates or overrides the
checkout engine's checks, and when it is unconfigured or unreachable it
degrades to ErrAdvisorUnavailable so the UI can render an "unavailable"
state instead of blocking checkout.
*/
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/warp/canteen-engine/canteen"
)

const defaultModel = "gemini-2.5-flash"

// Client talks to a Gemini-style generateContent endpoint.
type Client struct {
	http   *resty.Client
	apiKey string
	model  string
}

// New creates an advisor client. An empty apiKey yields a client whose
// calls all fail with ErrAdvisorUnavailable.
func New(baseURL, apiKey string) *Client {
	return &Client{
		http:   resty.New().SetBaseURL(baseURL),
		apiKey: apiKey,
		model:  defaultModel,
	}
}

// Available reports whether the advisor is configured at all.
func (c *Client) Available() bool { return c.apiKey != "" }

// Suggestion is a proposed product combination within a budget.
// EstimatedCost is the model's estimate — advisory, never authoritative.
type Suggestion struct {
	Text          string
	EstimatedCost decimal.Decimal
}

// SuggestMeal asks for a balanced combination from the product list that
// fits the budget.
func (c *Client) SuggestMeal(ctx context.Context, products []canteen.Product, budget decimal.Decimal) (Suggestion, error) {
	if !c.Available() {
		return Suggestion{}, canteen.ErrAdvisorUnavailable
	}

	menu := make([]string, 0, len(products))
	for _, p := range products {
		if !p.Sellable() {
			continue
		}
		menu = append(menu, fmt.Sprintf("%s (%s)", p.Name, p.Price.StringFixed(2)))
	}

	prompt := fmt.Sprintf(
		"I have a budget of %s. Suggest a balanced meal combination (e.g., main + drink or snack) from this menu: %s. "+
			"Explain why it's a good choice in one sentence. "+
			`Return JSON: { "suggestion": "string", "totalCost": number }`,
		budget.StringFixed(2), strings.Join(menu, ", "))

	text, err := c.generate(ctx, prompt, true)
	if err != nil {
		return Suggestion{}, err
	}

	var parsed struct {
		Suggestion string  `json:"suggestion"`
		TotalCost  float64 `json:"totalCost"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Suggestion{}, fmt.Errorf("%w: malformed suggestion: %v", canteen.ErrAdvisorUnavailable, err)
	}

	return Suggestion{
		Text:          parsed.Suggestion,
		EstimatedCost: decimal.NewFromFloat(parsed.TotalCost),
	}, nil
}

// AnalyzeSales asks for brief, actionable insights over recent orders.
func (c *Client) AnalyzeSales(ctx context.Context, orders []canteen.Order) (string, error) {
	if !c.Available() {
		return "", canteen.ErrAdvisorUnavailable
	}

	// Cap the payload; recent activity is enough for trend commentary.
	if len(orders) > 20 {
		orders = orders[:20]
	}
	summaries := make([]string, 0, len(orders))
	for _, o := range orders {
		names := make([]string, 0, len(o.Lines))
		for _, l := range o.Lines {
			names = append(names, l.Name)
		}
		summaries = append(summaries, fmt.Sprintf("%s %s [%s] at %s",
			o.Kind, o.Total.StringFixed(2), strings.Join(names, ", "),
			o.CreatedAt.Format("2006-01-02 15:04")))
	}

	prompt := fmt.Sprintf(
		"Analyze these canteen transactions and provide 3 brief, actionable insights for the canteen manager. "+
			"Focus on popular items, peak times (if discernable), or revenue trends. Keep it under 100 words. Data: %s",
		strings.Join(summaries, "; "))

	return c.generate(ctx, prompt, false)
}

// =============================================================================
// TRANSPORT
// =============================================================================

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, prompt string, wantJSON bool) (string, error) {
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	if wantJSON {
		req.GenerationConfig = &generationConfig{ResponseMimeType: "application/json"}
	}

	var result generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", c.apiKey).
		SetBody(req).
		SetResult(&result).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", c.model))
	if err != nil {
		return "", fmt.Errorf("%w: %v", canteen.ErrAdvisorUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d", canteen.ErrAdvisorUnavailable, resp.StatusCode())
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response", canteen.ErrAdvisorUnavailable)
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}
