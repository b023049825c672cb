package tracking

import (
	"net/http"

	"codeberg.org/touchpath/server/internal/botdefense"
	"codeberg.org/touchpath/server/internal/campaign"
	"codeberg.org/touchpath/server/internal/errors"
	"codeberg.org/touchpath/server/internal/logger"
	"codeberg.org/touchpath/server/internal/requestctx"
	"codeberg.org/touchpath/server/touchpath/touches"
	"codeberg.org/touchpath/server/touchpath/visitors"
	"github.com/gin-gonic/gin"
)

// resolves (or issues) the visitor identity and records one interaction.
// bots and unrecordable beacons get 204 with no body.
func TrackHandler(visitorService *visitors.Service, recorder *touches.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if botdefense.IsBot(c) {
			c.Status(http.StatusNoContent)
			return
		}

		var req TrackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		touchType := touches.Type(req.Type)
		if !touchType.Valid() {
			errors.BadRequest(c, "unknown touch type", nil)
			return
		}

		ctx := c.Request.Context()
		rc := requestctx.FromGin(c)

		if req.PageURL != "" && !rc.ForPage(req.PageURL, req.Referrer) {
			errors.BadRequest(c, "page_url must be an absolute http(s) URL", nil)
			return
		}

		resolution, err := visitorService.ResolveOrCreate(ctx, rc)
		if err != nil {
			errors.InternalError(c, "failed to resolve visitor", err)
			return
		}

		http.SetCookie(c.Writer, resolution.Cookie)

		touch, err := recorder.Record(ctx, rc, touchType, req.ContextID, req.Extra)
		if err != nil {
			errors.InternalError(c, "failed to record touch", err)
			return
		}

		if touch == nil {
			c.Status(http.StatusNoContent)
			return
		}

		response := TrackResponse{
			VisitorID:    resolution.VisitorID,
			TouchID:      touch.ID,
			Type:         string(touch.Type),
			IsNewVisitor: resolution.IsNew,
		}

		// landing back from a partner with the handoff token on the URL
		if ref := campaign.HandoffReturnToken(rc); touchType == touches.TypePageView && errors.IsValidHexID(ref) {
			back, err := recorder.Record(ctx, rc, touches.TypeReturnVisit, req.ContextID, map[string]any{
				"handoff_token": ref,
			})
			if err != nil {
				logger.Warn("failed to record return visit", "visitor_id", resolution.VisitorID, "error", err)
			} else if back != nil {
				response.ReturnTouch = back.ID
			}
		}

		c.JSON(http.StatusOK, response)
	}
}

// reports the visitor id carried by the request without creating one
func CurrentVisitorHandler(visitorService *visitors.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := visitorService.CurrentID(requestctx.FromGin(c))

		c.JSON(http.StatusOK, VisitorResponse{
			VisitorID: id,
			Known:     ok,
		})
	}
}

// links a hashed email to the current visitor for later completion matching
func LinkEmailHandler(visitorService *visitors.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if botdefense.IsBot(c) {
			c.Status(http.StatusNoContent)
			return
		}

		var req LinkEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		visitorID, ok := visitorService.CurrentID(requestctx.FromGin(c))
		if !ok {
			errors.NotFound(c, "visitor")
			return
		}

		linked, err := visitorService.LinkEmail(c.Request.Context(), visitorID, req.Email)
		if err != nil {
			errors.InternalError(c, "failed to link email", err)
			return
		}

		if !linked {
			errors.NotFound(c, "visitor")
			return
		}

		c.JSON(http.StatusOK, LinkEmailResponse{
			VisitorID: visitorID,
			Linked:    true,
		})
	}
}
