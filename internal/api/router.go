package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupDashboardRouter(apiHandler *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", apiHandler.Healthz)
	r.Get("/ws", apiHandler.HandleWebSocket)
	if apiHandler.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(apiHandler.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", apiHandler.GetRooms)
		r.Get("/rooms/{room}", apiHandler.GetRoom)
		r.Get("/rooms/{room}/series/{kind}", apiHandler.GetSeries)
		r.Get("/leaks", apiHandler.GetLeaks)

		// Commands end up on the broker, so they are rate limited.
		r.Post("/away", apiHandler.rateLimited(apiHandler.PostAway))
		r.Post("/rooms/{room}/devices/{device}/toggle", apiHandler.rateLimited(apiHandler.PostToggleDevice))
		r.Post("/alerts/dismiss", apiHandler.PostDismiss)
	})

	// Serve the dashboard's static files
	if apiHandler.webDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(apiHandler.webDir)))
	}

	return r
}

func SetupHistoryRouter(historyHandler *HistoryHandler, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", historyHandler.Health)
	r.Get("/history/today", historyHandler.Today)
	r.Get("/history/{date}", historyHandler.ByDate)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
