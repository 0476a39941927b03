package main

import (
	"voice-platform/internal/httpapi"
	"voice-platform/internal/stats"
	"voice-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	handlers httpapi.Handlers
	stats    *stats.Collector
	webhook  telephony.WebhookHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	r.GET("/health", deps.handlers.Health)

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Twilio signature validation in production.
	r.POST("/webhooks/telephony", deps.webhook.HandleInboundCall)

	conversations := r.Group("/conversations")
	{
		conversations.POST("", deps.handlers.CreateConversation)
		conversations.GET("/:id", deps.handlers.GetConversation)
		conversations.POST("/:id/end", deps.handlers.EndConversation)
		conversations.GET("/:id/memory", deps.handlers.GetConversationMemory)
	}

	r.POST("/livekit/token", deps.handlers.IssueMediaToken)

	// Operational aggregates; in-memory, reset on restart.
	r.GET("/stats", deps.stats.Serve)
}
