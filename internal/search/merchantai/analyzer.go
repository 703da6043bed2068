// internal/search/merchantai/analyzer.go
package merchantai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"carsearch/internal/common/config"
	httpclient "carsearch/internal/common/http"
	"carsearch/internal/common/logger"
	"carsearch/internal/models"
)

var (
	ErrAnalysisTimeout = errors.New("AI_ANALYSIS_TIMEOUT")
	ErrAnalysisFailed  = errors.New("AI_ANALYSIS_FAILED")
)

// Analyzer produces the optional merchant enrichment from the top-ranked
// listings and the caller's client profile. It runs on its own deadline,
// separate from the source fan-out, so a slow model can never stall the
// listing pipeline.
type Analyzer struct {
	cfg    config.AIConfig
	client *httpclient.Client
	logger logger.Logger
}

func NewAnalyzer(cfg config.AIConfig, log logger.Logger) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		client: httpclient.NewClient(cfg.Deadline()),
		logger: log.WithFields(map[string]interface{}{"component": "merchantai"}),
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	ResponseFmt struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You are an assistant for a used-car dealer. Given ranked
vehicle listings and a client profile, respond with JSON containing:
"summary" (2-3 sentences on the market picture), "negotiationAngle" (one
concrete angle for the top listing), "riskFlags" (array of short warnings,
possibly empty) and "confidence" (0.0-1.0).`

// Analyze runs one model call over the top listings. The ctx passed in
// already carries the analyzer deadline; timeouts surface as
// ErrAnalysisTimeout so the caller can degrade instead of failing the run.
func (a *Analyzer) Analyze(ctx context.Context, listings []models.ScoredListing, profile *models.ClientProfile) (*models.MerchantAIResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Deadline())
	defer cancel()

	payload := completionRequest{
		Model:       a.cfg.Model,
		Temperature: 0,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(listings, profile)},
		},
	}
	payload.ResponseFmt.Type = "json_object"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, fmt.Errorf("%w: after %s", ErrAnalysisTimeout, time.Since(start).Round(time.Millisecond))
		}
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrAnalysisFailed, resp.StatusCode)
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrAnalysisFailed, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrAnalysisFailed)
	}

	var result models.MerchantAIResult
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("%w: malformed model output: %v", ErrAnalysisFailed, err)
	}

	a.logger.Info("merchant analysis produced", map[string]interface{}{
		"listings":   len(listings),
		"confidence": result.Confidence,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return &result, nil
}

func buildUserPrompt(listings []models.ScoredListing, profile *models.ClientProfile) string {
	var b strings.Builder

	b.WriteString("Ranked listings:\n")
	for _, s := range listings {
		l := s.Listing
		fmt.Fprintf(&b, "%d. %s %s", s.Rank, l.Brand, l.Model)
		if l.Year != nil {
			fmt.Fprintf(&b, " (%d)", *l.Year)
		}
		if l.Price != nil {
			fmt.Fprintf(&b, " at %.0f EUR", *l.Price)
		}
		if l.Mileage != nil {
			fmt.Fprintf(&b, ", %d km", *l.Mileage)
		}
		fmt.Fprintf(&b, " [%s, score %.3f]\n", l.Source, s.Score)
	}

	if profile != nil {
		b.WriteString("\nClient profile:\n")
		if profile.BudgetFlexibility != "" {
			fmt.Fprintf(&b, "- budget flexibility: %s\n", profile.BudgetFlexibility)
		}
		if profile.Urgency != "" {
			fmt.Fprintf(&b, "- urgency: %s\n", profile.Urgency)
		}
		if profile.NegotiationStyle != "" {
			fmt.Fprintf(&b, "- negotiation style: %s\n", profile.NegotiationStyle)
		}
		if profile.Notes != "" {
			fmt.Fprintf(&b, "- notes: %s\n", profile.Notes)
		}
	}
	return b.String()
}
