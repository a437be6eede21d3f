package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	r.Get("/health", s.HandleHealth)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.HandleSignup)
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
		r.With(s.authMiddleware).Post("/logout", s.HandleLogout)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/dashboard", s.HandleDashboard)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.HandleListDevices)
			r.Route("/provisioning", func(r chi.Router) {
				r.Post("/request", s.HandleRequestCode)
				r.Post("/status", s.HandleProvisioningStatus)
				r.Post("/complete", s.HandleCompleteSetup)
				r.Get("/transitions", s.HandleTransitions)
			})
			r.Get("/{id}", s.HandleGetDevice)
		})
	})
}

// setupDeviceRoutes mounts the surface a pillow serves on its own access point
func (s *RESTServer) setupDeviceRoutes(r chi.Router) {
	r.Post("/provision", s.HandleDeviceProvision)
	r.Get("/api/status", s.HandleDeviceStatus)
}
