package mw

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/ipwatch/internal/logger"
	"github.com/MrSnakeDoc/ipwatch/internal/utils"
)

// AllowOnlyCIDRS restricts a route to clients inside the given networks.
// An empty list disables the check. A list where every entry is invalid denies
// everyone, so a typo never opens an operational route.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	invalid := m.Invalid()
	for _, entry := range invalid {
		log.Warn("ignoring invalid allowed CIDR", logger.String("entry", entry))
	}

	switch {
	case len(allowed) == 0:
		return func(next http.Handler) http.Handler { return next }
	case m.IsEmpty():
		log.Error("no valid allowed CIDR, denying every client", logger.Int("invalid", len(invalid)))
	default:
		log.Debug("CIDR allow-list ready",
			logger.Int("rules", len(allowed)-len(invalid)),
			logger.Bool("trust_proxy", trustProxy))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if m.IsEmpty() || !m.Allow(ip) {
				log.Debug("client outside allowed CIDRs",
					logger.String("ip", ip),
					logger.String("path", r.URL.Path),
					logger.String("request_id", middleware.GetReqID(r.Context())))
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
