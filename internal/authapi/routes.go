package authapi

import (
	"github.com/go-chi/chi/v5"

	"github.com/0x00K1/arcp/internal/permissions"
)

// Mount registers every authentication and token route onto r.
func (s *Service) Mount(r chi.Router) {
	r.Route("/auth", func(auth chi.Router) {
		auth.Post("/login", s.HandleLogin)
		auth.Post("/agent/request_temp_token", s.HandleRequestTempToken)

		auth.Group(func(admin chi.Router) {
			admin.Use(s.Require(permissions.LevelAdmin))
			admin.Post("/logout", s.HandleLogout)
			admin.Post("/set_pin", s.HandleSetPin)
			admin.Post("/verify_pin", s.HandleVerifyPin)
		})
	})

	r.Route("/tokens", func(tok chi.Router) {
		tok.Post("/validate", s.HandleValidateToken)

		tok.Group(func(authed chi.Router) {
			authed.Use(s.Require(permissions.LevelAgent))
			authed.Post("/refresh", s.HandleRefreshToken)
		})

		tok.Group(func(admin chi.Router) {
			admin.Use(s.Require(permissions.LevelAdminPin))
			admin.Post("/mint", s.HandleMintToken)
		})
	})
}
