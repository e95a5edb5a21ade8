package agentsapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/0x00K1/arcp/internal/authapi"
	"github.com/0x00K1/arcp/internal/permissions"
)

// Mount registers every agent-management route onto r, guarded by auth's
// permission middleware. Registration accepts either a temp-registration
// or admin token (both satisfy agent level); every other route requires
// at least an admin token.
func (s *Service) Mount(r chi.Router, auth *authapi.Service) {
	r.Route("/agents", func(agents chi.Router) {
		agents.Group(func(reg chi.Router) {
			reg.Use(auth.Require(permissions.LevelAgent))
			reg.Post("/register", s.HandleRegister)
		})

		agents.Group(func(admin chi.Router) {
			admin.Use(auth.Require(permissions.LevelAdmin))
			admin.Get("/", s.HandleList)
			admin.Get("/{id}", s.HandleGet)
			admin.Delete("/{id}", s.HandleUnregister)
			admin.Post("/{id}/heartbeat", s.HandleHeartbeat)
			admin.Method(http.MethodGet, "/{id}/metrics", http.HandlerFunc(s.HandleMetrics))
			admin.Method(http.MethodPost, "/{id}/metrics", http.HandlerFunc(s.HandleMetrics))
			admin.Method(http.MethodGet, "/search", http.HandlerFunc(s.HandleSearch))
			admin.Method(http.MethodPost, "/search", http.HandlerFunc(s.HandleSearch))
		})
	})
}
