package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// CORS rejects origins outside the allowlist with the JSON body the
// front-end expects, then delegates header handling to gin-contrib/cors.
// Requests without an Origin header (curl, health checks) always pass.
func CORS(allowed []string) gin.HandlerFunc {
	allowedSet := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		allowedSet[origin] = true
	}
	corsHandler := cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return allowedSet[origin] },
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Idempotency-Key"},
		MaxAge:          600 * time.Second,
	})

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && !allowedSet[origin] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "error": "CORS", "message": "Origin not allowed"})
			return
		}
		corsHandler(c)
	}
}

// RequireJSON enforces application/json bodies on mutating requests.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			ct := c.GetHeader("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"ok": false, "error": "UNSUPPORTED_MEDIA", "message": "Content-Type must be application/json"})
				return
			}
		}
		c.Next()
	}
}

type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// RateLimit allows perMin requests per minute per client IP for one route.
func RateLimit(perMin int) gin.HandlerFunc {
	cl := &clientLimiter{limiters: make(map[string]*rate.Limiter), perMin: perMin}
	return func(c *gin.Context) {
		if !cl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "RATE_LIMITED", "message": "too many requests"})
			return
		}
		c.Next()
	}
}

func (cl *clientLimiter) allow(ip string) bool {
	cl.mu.Lock()
	lim, ok := cl.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(cl.perMin)/60.0), cl.perMin)
		cl.limiters[ip] = lim
	}
	cl.mu.Unlock()
	return lim.Allow()
}

// Recovery converts panics into the INTERNAL error shape instead of letting
// one request take the process down.
func Recovery(log *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Errorf("panic recovered: %v", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "INTERNAL", "message": "internal error"})
	})
}
