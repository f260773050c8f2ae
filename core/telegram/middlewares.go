package telegram

import (
	"time"

	"github.com/CaDiBob/simple-telegram-store/core/config"
	"github.com/CaDiBob/simple-telegram-store/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares returns the standard global middleware chain:
// panic recovery first, then rate limiting, request logging and metrics.
func DefaultMiddlewares(cfg *config.Config) []tele.MiddlewareFunc {
	chain := []tele.MiddlewareFunc{
		middleware.RecoverMiddleware,
	}
	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		exclude := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, kind := range cfg.RateLimit.ExcludeUpdates {
			exclude[kind] = struct{}{}
		}
		chain = append(chain, middleware.RateLimitMiddleware(middleware.RateLimitOptions{
			Interval: time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Exclude:  exclude,
		}))
	}
	chain = append(chain,
		middleware.LoggerMiddleware,
		middleware.MessageMetricsMiddleware,
	)
	return chain
}
