package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dealerdesk/internal/api/auth"
	"github.com/dealerdesk/internal/billing"
	"github.com/dealerdesk/internal/conversation"
	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/internal/suggest"
	"github.com/dealerdesk/pkg/models"
)

// httpError maps the error taxonomy to status codes
func httpError(err error) error {
	switch {
	case errs.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errs.IsAuth(err):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errs.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errs.IsConflict(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Customers

type registerCustomerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Source    string `json:"source"`
}

func (s *Server) registerCustomer(c echo.Context) error {
	var req registerCustomerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cust, err := s.deps.Customers.Register(c.Request().Context(),
		req.Email, req.FirstName, req.LastName, req.Phone, req.Source)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cust)
}

func (s *Server) getCustomer(c echo.Context) error {
	cust, err := s.deps.Customers.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cust)
}

func (s *Server) listSyncAttempts(c echo.Context) error {
	attempts, err := s.deps.SyncJournal.ListByEntity(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"attempts": attempts})
}

// Conversations

type createConversationRequest struct {
	CustomerID string `json:"customer_id"`
	Priority   string `json:"priority"`
	Source     string `json:"source"`
}

func (s *Server) createConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	convo, err := s.deps.Conversations.Create(c.Request().Context(), conversation.CreateParams{
		CustomerID: req.CustomerID,
		Priority:   req.Priority,
		Source:     req.Source,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, convo)
}

func (s *Server) getConversation(c echo.Context) error {
	convo, err := s.deps.Conversations.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, convo)
}

type assignRequest struct {
	StaffID string `json:"staff_id"`
}

func (s *Server) assignConversation(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.StaffID == "" {
		req.StaffID = auth.StaffID(c)
	}

	if err := s.deps.Conversations.Assign(c.Request().Context(), c.Param("id"), req.StaffID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type transitionRequest struct {
	To string `json:"to"`
}

func (s *Server) transitionConversation(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.deps.Conversations.Transition(c.Request().Context(),
		c.Param("id"), models.ConversationStatus(req.To), auth.StaffID(c))
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) reopenConversation(c echo.Context) error {
	if err := s.deps.Conversations.Reopen(c.Request().Context(), c.Param("id"), auth.StaffID(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listMessages(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if after := c.QueryParam("after"); after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "after must be RFC3339")
		}
		msgs, err := s.deps.Conversations.MessagesAfter(ctx, id, t)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"messages": msgs})
	}

	msgs, err := s.deps.Conversations.Messages(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": msgs})
}

type appendMessageRequest struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

func (s *Server) appendMessage(c echo.Context) error {
	var req appendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	msg, err := s.deps.Conversations.AppendMessage(c.Request().Context(),
		c.Param("id"), models.Sender(req.Sender), req.Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) conversationHistory(c echo.Context) error {
	history, err := s.deps.Conversations.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"history": history})
}

// Suggestions

type suggestRequest struct {
	MessageID string         `json:"message_id"`
	Facts     []suggest.Fact `json:"facts"`
}

type suggestResponse struct {
	Suggestion   suggest.Suggestion `json:"suggestion"`
	AssistanceID string             `json:"assistance_id"`
}

func (s *Server) requestSuggestion(c echo.Context) error {
	var req suggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MessageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message_id is required")
	}

	ctx := c.Request().Context()
	msgs, err := s.deps.Conversations.Messages(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	// The message must belong to the addressed conversation; otherwise a
	// suggestion could be recorded against another conversation's message.
	if !containsMessage(msgs, req.MessageID) {
		return httpError(errs.NotFound("message", req.MessageID))
	}

	suggestion, assistance, err := s.deps.Suggestions.Suggest(ctx, req.MessageID, suggest.Context{
		Messages: msgs,
		Facts:    req.Facts,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, suggestResponse{
		Suggestion:   suggestion,
		AssistanceID: assistance.ID,
	})
}

func containsMessage(msgs []models.Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *Server) acceptAssistance(c echo.Context) error {
	if err := s.deps.Dispositions.Accept(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) rejectAssistance(c echo.Context) error {
	if err := s.deps.Dispositions.Reject(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type editAssistanceRequest struct {
	Text string `json:"text"`
}

func (s *Server) editAssistance(c echo.Context) error {
	var req editAssistanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.deps.Dispositions.Edit(c.Request().Context(), c.Param("id"), req.Text); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type rateAssistanceRequest struct {
	Score int `json:"score"`
}

func (s *Server) rateAssistance(c echo.Context) error {
	var req rateAssistanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.deps.Dispositions.Rate(c.Request().Context(), c.Param("id"), req.Score); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Events feed

func (s *Server) listEvents(c echo.Context) error {
	since := time.Time{}
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC3339")
		}
		since = t
	}

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": s.deps.Feed.Since(since, limit),
	})
}

// Billing webhook

func (s *Server) handleBillingWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	headers := map[string]string{}
	for k := range c.Request().Header {
		headers[k] = c.Request().Header.Get(k)
	}

	decision, err := s.deps.Billing.Handle(c.Request().Context(), body, headers)
	if decision == billing.Accepted {
		// 2xx only after the durable commit inside Handle
		return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
	}

	switch {
	case errs.IsAuth(err):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	case errs.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		// Non-2xx makes the provider redeliver
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}
}
