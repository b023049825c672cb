package tracking

// browser beacon describing one interaction
type TrackRequest struct {
	Type      string         `json:"type" binding:"required"`
	ContextID string         `json:"context_id"`
	PageURL   string         `json:"page_url"`
	Referrer  string         `json:"referrer"`
	Extra     map[string]any `json:"extra"`
}

type TrackResponse struct {
	VisitorID    string `json:"visitor_id"`
	TouchID      string `json:"touch_id"`
	Type         string `json:"type"`
	IsNewVisitor bool   `json:"is_new_visitor"`
	ReturnTouch  string `json:"return_touch_id,omitempty"`
}

type VisitorResponse struct {
	VisitorID string `json:"visitor_id,omitempty"`
	Known     bool   `json:"known"`
}

type LinkEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type LinkEmailResponse struct {
	VisitorID string `json:"visitor_id"`
	Linked    bool   `json:"linked"`
}
