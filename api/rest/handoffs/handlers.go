package handoffs

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/touchpath/server/internal/botdefense"
	"codeberg.org/touchpath/server/internal/campaign"
	"codeberg.org/touchpath/server/internal/config"
	"codeberg.org/touchpath/server/internal/errors"
	"codeberg.org/touchpath/server/internal/logger"
	"codeberg.org/touchpath/server/internal/relay"
	"codeberg.org/touchpath/server/internal/requestctx"
	"codeberg.org/touchpath/server/internal/signature"
	"codeberg.org/touchpath/server/touchpath/handoffs"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// creates a handoff for the current visitor before they leave for a partner
func CreateHandoffHandler(tracker *handoffs.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if botdefense.IsBot(c) {
			c.Status(http.StatusNoContent)
			return
		}

		var req CreateHandoffRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		rc := requestctx.FromGin(c)
		if req.PageURL != "" && !rc.ForPage(req.PageURL, req.Referrer) {
			errors.BadRequest(c, "page_url must be an absolute http(s) URL", nil)
			return
		}

		created, err := tracker.CreateHandoff(c.Request.Context(), rc, req.ContextID, req.DestinationURL, req.Params)
		if stderrors.Is(err, handoffs.ErrInvalidDestination) {
			errors.BadRequest(c, "destination_url must be an absolute http(s) URL", err)
			return
		}

		if err != nil {
			errors.InternalError(c, "failed to create handoff", err)
			return
		}

		if created.Visitor != nil {
			http.SetCookie(c.Writer, created.Visitor.Cookie)
		}

		c.JSON(http.StatusCreated, created)
	}
}

// sends the visitor on to the partner with the handoff token attached
func RedirectHandler(tracker *handoffs.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, err := tracker.ProcessRedirect(c.Request.Context(), c.Param("token"))
		if err != nil {
			errors.InternalError(c, "failed to look up handoff", err)
			return
		}

		if target == "" {
			errors.NotFound(c, "handoff")
			return
		}

		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, target)
	}
}

// reports the lifecycle state of a handoff
func GetHandoffHandler(tracker *handoffs.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := tracker.Lookup(c.Request.Context(), c.Param("token"))
		if stderrors.Is(err, handoffs.ErrHandoffNotFound) {
			errors.NotFound(c, "handoff")
			return
		}

		if err != nil {
			errors.InternalError(c, "failed to look up handoff", err)
			return
		}

		c.JSON(http.StatusOK, HandoffStatusResponse{
			Token:          h.Token,
			ContextID:      h.ContextID,
			Status:         h.Status,
			DestinationURL: h.DestinationURL,
			CreatedAt:      h.CreatedAt,
			CompletedAt:    h.CompletedAt,
			ExpiredAt:      h.ExpiredAt,
		})
	}
}

// accepts a signed server-to-server completion notice
func WebhookHandler(matcher *handoffs.Matcher, cfg WebhookConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			errors.BadRequest(c, "failed to read request body", err)
			return
		}

		if err := signature.Verify(cfg.Secret, body, c.GetHeader(signature.Header), cfg.SignatureOptional); err != nil {
			logger.Warn("rejected completion webhook",
				"client_ip", c.ClientIP(),
				"error", err,
			)
			errors.InvalidSignature(c)
			return
		}

		var req CompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			errors.BadRequest(c, "invalid JSON body", err)
			return
		}

		result, err := matcher.Receive(c.Request.Context(), req.completion())
		if stderrors.Is(err, handoffs.ErrInvalidCompletion) {
			errors.BadRequest(c, "isf_ref, account_number or email is required", nil)
			return
		}

		if err != nil {
			errors.InternalError(c, "failed to record completion", err)
			return
		}

		c.JSON(http.StatusOK, newCompletionResponse(result))
	}
}

// handles the browser coming back from a partner after completing.
// the completion arrives as a signed token in ?t=, or as plain query
// parameters when signatures are optional.
func CompleteRedirectHandler(matcher *handoffs.Matcher, cfg WebhookConfig, site config.Site) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			completion *handoffs.Completion
			redirectTo string
		)

		if token := c.Query("t"); token != "" {
			claims, err := handoffs.ParseCompletionRedirect(cfg.Secret, token)
			if err != nil {
				errors.InvalidToken(c, err)
				return
			}

			completion = claims.Completion()
			redirectTo = claims.RedirectTo
		} else {
			if !cfg.SignatureOptional || cfg.Secret != "" {
				errors.InvalidToken(c, nil)
				return
			}

			completion = CompletionRequest{
				HandoffToken:  c.Query(campaign.ParamHandoffRef),
				ContextID:     c.Query("context_id"),
				AccountNumber: c.Query("account_number"),
				Email:         c.Query("email"),
				ExternalID:    c.Query("external_id"),
				Source:        c.Query("source"),
			}.completion()
			redirectTo = c.Query("redirect_to")
		}

		if completion.Source == "" {
			completion.Source = "redirect"
		}

		result, err := matcher.Receive(c.Request.Context(), completion)
		if stderrors.Is(err, handoffs.ErrInvalidCompletion) {
			errors.BadRequest(c, "isf_ref, account_number or email is required", nil)
			return
		}

		if err != nil {
			errors.InternalError(c, "failed to record completion", err)
			return
		}

		target := safeRedirect(site, redirectTo)
		if target == "" {
			c.JSON(http.StatusOK, newCompletionResponse(result))
			return
		}

		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, target)
	}
}

// sends a signed test payload so partners can check their receiver.
// the request must be signed with the webhook secret like a completion.
func WebhookTestHandler(webhook *relay.Webhook, cfg WebhookConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			errors.BadRequest(c, "failed to read request body", err)
			return
		}

		if err := signature.Verify(cfg.Secret, body, c.GetHeader(signature.Header), cfg.SignatureOptional); err != nil {
			logger.Warn("rejected webhook test request",
				"client_ip", c.ClientIP(),
				"error", err,
			)
			errors.InvalidSignature(c)
			return
		}

		var req WebhookTestRequest
		if err := binding.JSON.BindBody(body, &req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		if err := webhook.CheckTarget(req.URL); err != nil {
			errors.BadRequest(c, "url must be a public http(s) endpoint", err)
			return
		}

		c.JSON(http.StatusOK, webhook.DeliverTest(c.Request.Context(), req.URL))
	}
}

// target when it is an http(s) URL on the site (or a subdomain of it),
// otherwise the site root; "" when no site is configured
func safeRedirect(site config.Site, target string) string {
	if site.URL == nil {
		return ""
	}

	root := *site.URL
	root.Path = "/"
	root.RawQuery = ""
	root.Fragment = ""

	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return root.String()
	}

	host := strings.ToLower(u.Hostname())
	if host != site.Host && !strings.HasSuffix(host, "."+site.Host) {
		return root.String()
	}

	return u.String()
}
