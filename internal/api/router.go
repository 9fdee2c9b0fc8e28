// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the HTTP handler tree.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, middleware *Middleware) *Router {
	if middleware == nil {
		middleware = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: middleware}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.Get("/healthz", router.handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(PrometheusMetrics())

		r.Get("/vulnerabilities", router.handler.ListVulnerabilities)
		r.Get("/vulnerabilities/{cveID}", router.handler.GetVulnerability)
		r.Post("/sync", router.handler.TriggerSync)
		r.Get("/sync/status", router.handler.SyncStatus)
		r.Post("/sync/{cveID}", router.handler.ResyncCve)
		r.Get("/teams/alerts", router.handler.TeamAlerts)
	})

	return r
}
