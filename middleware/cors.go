package middleware

import (
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS admits the dashboard UI origins. The events stream is read with
// EventSource, so Last-Event-ID and Cache-Control must pass preflight.
// With allowLocalhost set, any localhost port is accepted as well.
func CORS(origins []string, allowLocalhost bool) gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Length", "Cache-Control"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowLocalhost {
		cfg.AllowOriginFunc = isLocalOrigin
	}
	return cors.New(cfg)
}

func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
