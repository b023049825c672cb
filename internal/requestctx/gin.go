package requestctx

import (
	"github.com/gin-gonic/gin"
)

const ginKey = "touchpath.request_context"

// returns the RequestContext for a gin request, building it on first use so
// every handler in the chain sees the same resolved visitor
func FromGin(c *gin.Context) *RequestContext {
	if v, ok := c.Get(ginKey); ok {
		if rc, ok := v.(*RequestContext); ok {
			return rc
		}
	}

	rc := FromRequest(c.Request, nowFunc())
	rc.ClientIP = c.ClientIP()
	c.Set(ginKey, rc)

	return rc
}
