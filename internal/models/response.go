// internal/models/response.go
package models

// Identity is the authenticated caller, supplied by the upstream auth
// collaborator. The tier decides unlimited-quota treatment.
type Identity struct {
	UserID string `json:"userId"`
	Tier   string `json:"tier"`
}

// ClientProfile is caller-supplied context for the merchant analysis. It is
// passed through opaquely; only its shape is checked at the HTTP boundary.
type ClientProfile struct {
	BudgetFlexibility string `json:"budgetFlexibility,omitempty"`
	Urgency           string `json:"urgency,omitempty"`
	NegotiationStyle  string `json:"negotiationStyle,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// MerchantAIResult is the optional enrichment produced once per run.
type MerchantAIResult struct {
	Summary          string   `json:"summary"`
	NegotiationAngle string   `json:"negotiationAngle"`
	RiskFlags        []string `json:"riskFlags"`
	Confidence       float64  `json:"confidence"`
}

// SourceStatus reports one adapter's outcome for observability.
type SourceStatus string

const (
	SourceStatusOK      SourceStatus = "ok"
	SourceStatusTimeout SourceStatus = "timeout"
	SourceStatusError   SourceStatus = "error"
)

// SearchRequest is the inbound orchestration request.
type SearchRequest struct {
	Criteria          RawCriteria    `json:"criteria"`
	ClientProfile     *ClientProfile `json:"clientProfile,omitempty"`
	RequestEnrichment bool           `json:"requestEnrichment"`
}

// SearchResponse is the assembled run result. Listings are ranked; Degraded
// is set when requested enrichment could not be produced.
type SearchResponse struct {
	RequestID        string                  `json:"requestId"`
	Listings         []ScoredListing         `json:"listings"`
	SourceStatus     map[string]SourceStatus `json:"sourceStatus"`
	MerchantAnalysis *MerchantAIResult       `json:"merchantAnalysis,omitempty"`
	Degraded         bool                    `json:"degraded"`
}
