package handoffs

import (
	"time"

	"codeberg.org/touchpath/server/touchpath/handoffs"
)

// webhook verification settings shared by the completion endpoints
type WebhookConfig struct {
	Secret            string
	SignatureOptional bool
}

type CreateHandoffRequest struct {
	ContextID      string            `json:"context_id"`
	DestinationURL string            `json:"destination_url" binding:"required"`
	Params         map[string]string `json:"params"`
	PageURL        string            `json:"page_url"`
	Referrer       string            `json:"referrer"`
}

type HandoffStatusResponse struct {
	Token          string          `json:"token"`
	ContextID      string          `json:"context_id,omitempty"`
	Status         handoffs.Status `json:"status"`
	DestinationURL string          `json:"destination_url"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	ExpiredAt      *time.Time      `json:"expired_at,omitempty"`
}

// completion reported by a partner system
type CompletionRequest struct {
	HandoffToken  string `json:"isf_ref"`
	ContextID     string `json:"context_id"`
	AccountNumber string `json:"account_number"`
	Email         string `json:"email"`
	ExternalID    string `json:"external_id"`
	Source        string `json:"source"`
}

func (r CompletionRequest) completion() *handoffs.Completion {
	return &handoffs.Completion{
		ContextID:     r.ContextID,
		AccountNumber: r.AccountNumber,
		Email:         r.Email,
		HandoffToken:  r.HandoffToken,
		ExternalID:    r.ExternalID,
		Source:        r.Source,
	}
}

type CompletionResponse struct {
	CompletionID string `json:"completion_id"`
	Matched      bool   `json:"matched"`
	Strategy     string `json:"match_strategy,omitempty"`
	HandoffToken string `json:"handoff_token,omitempty"`
}

func newCompletionResponse(result *handoffs.MatchResult) CompletionResponse {
	response := CompletionResponse{
		CompletionID: result.CompletionID,
		Matched:      result.Matched,
		Strategy:     result.Strategy,
	}

	if result.Handoff != nil {
		response.HandoffToken = result.Handoff.Token
	}

	return response
}

type WebhookTestRequest struct {
	URL string `json:"url" binding:"required,url"`
}
