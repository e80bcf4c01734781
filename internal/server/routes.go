package server

import (
	"github.com/fghsg9075-lab/aios/internal/server/middleware"
	v1 "github.com/fghsg9075-lab/aios/internal/server/v1"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.Tracing(s.config.Telemetry.ServiceName))
	s.router.Use(middleware.CORS(s.config.Server.AllowedOrigins))
	s.router.Use(middleware.ErrorHandler(s.logger))

	// public
	healthHandler := v1.NewHealthHandler(s.deps.Version)
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	api := s.router.Group("/v1")
	if s.limiter != nil {
		api.Use(s.limiter.Middleware())
	}
	api.Use(middleware.Auth(s.config.Server.AdminKeys))
	{
		executeHandler := v1.NewExecuteHandler(s.deps.Dispatcher, s.validator)
		api.POST("/execute", executeHandler.Execute)

		providerHandler := v1.NewProviderHandler(s.deps.Dispatcher, s.validator)
		api.GET("/providers", providerHandler.List)
		api.GET("/providers/:id", providerHandler.Get)
		api.PUT("/providers/:id", providerHandler.Put)
		api.DELETE("/providers/:id", providerHandler.Delete)
		api.POST("/providers/:id/test", providerHandler.Test)
		api.POST("/providers/:id/keys", providerHandler.AddKey)
		api.PATCH("/providers/:id/keys/:suffix", providerHandler.SetKeyActive)
		api.DELETE("/providers/:id/keys/:suffix", providerHandler.RemoveKey)
		api.POST("/providers/:id/keys/:suffix/reset", providerHandler.ResetKey)

		routingHandler := v1.NewRoutingHandler(s.deps.Dispatcher, s.validator)
		api.GET("/routing", routingHandler.Get)
		api.PUT("/routing", routingHandler.Put)

		if s.deps.Analytics != nil {
			analyticsHandler := v1.NewAnalyticsHandler(s.deps.Analytics)
			api.GET("/analytics/providers", analyticsHandler.GetProviderStats)
		}
	}
}
