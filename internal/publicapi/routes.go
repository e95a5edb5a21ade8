package publicapi

import "github.com/go-chi/chi/v5"

// Mount registers every unauthenticated public route onto r. Per
// spec.md §4.3, progressive-lockout rate limiting applies only to the
// login/pin/global buckets (global guards temp-token issuance), not to
// the read-only discovery surface.
func (s *Service) Mount(r chi.Router) {
	r.Route("/public", func(pub chi.Router) {
		pub.Get("/discover", s.HandleDiscover)
		pub.Post("/search", s.HandleSearch)
		pub.Get("/agent/{id}", s.HandleGetAgent)
		pub.Post("/connect/{id}", s.HandleConnect)
		pub.Get("/info", s.HandleInfo)
		pub.Get("/stats", s.HandleStats)
		pub.Get("/agent_types", s.HandleAgentTypes)
	})
}
