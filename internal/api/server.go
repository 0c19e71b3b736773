// Package api exposes the console's HTTP surface: conversation and
// suggestion operations for authenticated staff, plus the unauthenticated
// billing webhook endpoint (the signature is its credential).
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dealerdesk/internal/api/auth"
	"github.com/dealerdesk/internal/billing"
	"github.com/dealerdesk/internal/conversation"
	"github.com/dealerdesk/internal/crm"
	"github.com/dealerdesk/internal/customer"
	"github.com/dealerdesk/internal/suggest"
)

// Deps are the services the API fronts
type Deps struct {
	Conversations *conversation.Service
	Customers     *customer.Service
	Suggestions   *suggest.Engine
	Dispositions  *suggest.Dispositions
	Billing       *billing.Processor
	SyncJournal   crm.AttemptStore
	Feed          *EventFeed
	JWTSecret     string
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
	deps Deps
}

// NewServer creates a new API server
func NewServer(port int, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		port: port,
		deps: deps,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// Billing webhooks authenticate via the signature header, not a bearer
	// token
	s.echo.POST("/webhooks/billing", s.handleBillingWebhook)

	// API v1 group
	v1 := s.echo.Group("/api/v1", auth.RequireAuth(s.deps.JWTSecret))

	// Customer endpoints
	v1.POST("/customers", s.registerCustomer)
	v1.GET("/customers/:id", s.getCustomer)
	v1.GET("/customers/:id/sync-attempts", s.listSyncAttempts)

	// Conversation endpoints
	v1.POST("/conversations", s.createConversation)
	v1.GET("/conversations/:id", s.getConversation)
	v1.POST("/conversations/:id/assign", s.assignConversation)
	v1.POST("/conversations/:id/transition", s.transitionConversation)
	v1.POST("/conversations/:id/reopen", s.reopenConversation)
	v1.GET("/conversations/:id/messages", s.listMessages)
	v1.POST("/conversations/:id/messages", s.appendMessage)
	v1.GET("/conversations/:id/history", s.conversationHistory)
	v1.POST("/conversations/:id/suggest", s.requestSuggestion)

	// Suggestion disposition endpoints
	v1.POST("/assistance/:id/accept", s.acceptAssistance)
	v1.POST("/assistance/:id/reject", s.rejectAssistance)
	v1.POST("/assistance/:id/edit", s.editAssistance)
	v1.POST("/assistance/:id/rate", s.rateAssistance)

	// Activity feed for polling clients
	v1.GET("/events", s.listEvents)
}

// Start begins the API server and blocks until an interrupt, then shuts
// down gracefully
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}
