package botdefense

import (
	"net/http"

	"codeberg.org/touchpath/server/internal/logger"
	"github.com/gin-gonic/gin"
)

// gin context keys set by the middleware
const (
	ContextKeyIsBot    = "is_bot"
	ContextKeyBotScore = "bot_score"
)

// classifies requests and marks bots on the gin context.
// bots still reach handlers; tracking handlers decide what to skip.
type Defense struct {
	config *Config
}

func New(config *Config) *Defense {
	if config == nil {
		config = DefaultConfig()
	}

	if config.ScoreThreshold <= 0 {
		config.ScoreThreshold = BotScoreThreshold
	}

	return &Defense{config: config}
}

// returns a gin middleware that marks bot-like requests
func (d *Defense) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.config.Enabled {
			c.Next()
			return
		}

		path := c.Request.URL.Path

		if d.config.IsExemptPath(path) {
			c.Next()
			return
		}

		if d.config.IsHoneypotPath(path) || IsSuspiciousPath(path) {
			logger.Warn("probe path requested",
				"ip", c.ClientIP(),
				"path", path,
				"user_agent", c.Request.Header.Get("User-Agent"),
			)

			c.Set(ContextKeyIsBot, true)
			c.AbortWithStatus(http.StatusNotFound)
			return
		}

		signals := DetectBot(c.Request)
		isBot := signals.IsBot(d.config.ScoreThreshold)

		c.Set(ContextKeyIsBot, isBot)
		c.Set(ContextKeyBotScore, signals.Score)

		if isBot {
			logger.Debug("bot-like request marked",
				"ip", c.ClientIP(),
				"path", path,
				"score", signals.Score,
				"pattern", signals.BotPatternMatch,
				"known_bot", signals.KnownBot,
			)
		}

		c.Next()
	}
}

// reports whether the middleware marked the request as a bot
func IsBot(c *gin.Context) bool {
	return c.GetBool(ContextKeyIsBot)
}
