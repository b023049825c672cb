package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/touchpath/server/internal/botdefense"
	"codeberg.org/touchpath/server/internal/config"
	"codeberg.org/touchpath/server/touchpath/touches"
	"codeberg.org/touchpath/server/touchpath/visitors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handoffToken = "0123456789abcdef0123456789abcdef"

type testServer struct {
	router    *gin.Engine
	visitors  *visitors.Service
	touchRepo *touches.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	site, err := config.ParseSite("https://example.com")
	require.NoError(t, err)

	touchRepo := touches.NewMemoryRepository()
	visitorService := visitors.NewService(visitors.NewMemoryRepository(), visitors.Options{Site: site})
	recorder := touches.NewRecorder(touchRepo, visitorService, site, nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-Bot") != "" {
			c.Set(botdefense.ContextKeyIsBot, true)
		}
	})

	RegisterRoutes(router.Group("/api/v1"), visitorService, recorder)

	return &testServer{router: router, visitors: visitorService, touchRepo: touchRepo}
}

func (s *testServer) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body) //nolint:errcheck
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	return w
}

func identityCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == config.DefaultCookieName {
			return c
		}
	}

	t.Fatal("identity cookie not set")
	return nil
}

func TestTrack(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/track", TrackRequest{
		Type:      "page_view",
		ContextID: "form-1",
		PageURL:   "https://example.com/apply?utm_source=google&utm_medium=cpc",
		Referrer:  "https://www.google.com/",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var first TrackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.True(t, first.IsNewVisitor)
	assert.Equal(t, "page_view", first.Type)
	assert.Len(t, first.VisitorID, 32)

	cookie := identityCookie(t, w)
	assert.Equal(t, first.VisitorID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)

	w = s.do(http.MethodPost, "/api/v1/track", TrackRequest{Type: "form_start", ContextID: "form-1"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var second TrackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.False(t, second.IsNewVisitor)
	assert.Equal(t, first.VisitorID, second.VisitorID)

	journey, err := s.touchRepo.ListForVisitor(context.Background(), first.VisitorID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, journey, 2)
	assert.Equal(t, "google", journey[0].UTM.Source)
	assert.Equal(t, "google.com", journey[0].ReferrerDomain)
	assert.Equal(t, "https://example.com/apply?utm_source=google&utm_medium=cpc", journey[0].PageURL)
	assert.Equal(t, touches.TypeFormStart, journey[1].Type)
}

func TestTrack_ReturnFromHandoff(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/track", TrackRequest{
		Type:    "page_view",
		PageURL: "https://example.com/welcome-back?isf_ref=" + handoffToken,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp TrackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ReturnTouch)

	journey, err := s.touchRepo.ListForVisitor(context.Background(), resp.VisitorID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, journey, 2)
	assert.Equal(t, touches.TypeReturnVisit, journey[1].Type)
	assert.Equal(t, handoffToken, journey[1].Data.Extra["handoff_token"])
}

func TestTrack_ReturnFromHandoffMarker(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/track", TrackRequest{
		Type:    "page_view",
		PageURL: "https://example.com/welcome-back?isf_handoff=" + handoffToken,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp TrackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ReturnTouch)
}

func TestTrack_Rejections(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		bot    bool
		status int
	}{
		{"bot gets 204", TrackRequest{Type: "page_view"}, true, http.StatusNoContent},
		{"missing type", map[string]string{"context_id": "x"}, false, http.StatusBadRequest},
		{"unknown type", TrackRequest{Type: "scroll"}, false, http.StatusBadRequest},
		{"relative page url", TrackRequest{Type: "page_view", PageURL: "/apply"}, false, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, _ := json.Marshal(tt.body) //nolint:errcheck
			req := httptest.NewRequest(http.MethodPost, "/api/v1/track", bytes.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			if tt.bot {
				req.Header.Set("X-Test-Bot", "1")
			}

			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Empty(t, w.Result().Cookies(), "no identity is minted for rejected beacons")
		})
	}
}

func TestCurrentVisitor(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/visitor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"known":false}`, w.Body.String())
	assert.Empty(t, w.Result().Cookies(), "lookup never issues an identity")

	cookie := &http.Cookie{Name: config.DefaultCookieName, Value: handoffToken}
	w = s.do(http.MethodGet, "/api/v1/visitor", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"visitor_id":"`+handoffToken+`","known":true}`, w.Body.String())
}

func TestLinkEmail(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/visitor/email", LinkEmailRequest{Email: "jane@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/v1/track", TrackRequest{Type: "page_view"})
	require.Equal(t, http.StatusOK, w.Code)
	cookie := identityCookie(t, w)

	w = s.do(http.MethodPost, "/api/v1/visitor/email", LinkEmailRequest{Email: "not-an-email"}, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/visitor/email", LinkEmailRequest{Email: "Jane@Example.com"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	ids, err := s.visitors.FindByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{cookie.Value}, ids)
}
