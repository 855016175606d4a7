package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/pitch-booking/pkg/response"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimit limits requests per caller (user id, else client IP) with a
// Redis-backed fixed window. rate uses the limiter format, e.g. "300-M".
func RateLimit(client *redis.Client, routeID, rate string) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   "rate_limiter:" + routeID,
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}

	return ginlimiter.NewMiddleware(limiter.New(store, r),
		ginlimiter.WithKeyGetter(func(c *gin.Context) string {
			if id, ok := GetUserID(c); ok {
				return "user:" + id
			}
			return "ip:" + c.ClientIP()
		}),
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		}),
		ginlimiter.WithErrorHandler(func(c *gin.Context, err error) {
			// fail open when the store is unreachable
			c.Next()
		}),
	), nil
}
