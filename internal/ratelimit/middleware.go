package ratelimit

import (
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Middleware rejects clients over the limit with 429. Clients are keyed by IP.
func Middleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := rl.Allow(c.ClientIP())
		if ok {
			c.Next()
			return
		}

		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		log.Printf("RateLimit: %s %s rejected for %s", c.Request.Method, c.FullPath(), c.ClientIP())
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please try again later"})
	}
}
