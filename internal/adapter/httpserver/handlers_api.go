package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/chatwarden/internal/domain"
	apperrors "github.com/pscheid92/chatwarden/internal/platform/errors"
)

func (s *Server) registerAPIRoutes(g *echo.Group) {
	g.POST("/actions", s.handleAction)
	g.GET("/users/:id", s.handleGetUser)
}

type subjectRequest struct {
	ID        int64  `json:"id" validate:"required"`
	Username  string `json:"username" validate:"max=64"`
	IsBot     bool   `json:"is_bot"`
	IsChannel bool   `json:"is_channel"`
}

func (r subjectRequest) toDomain() domain.Subject {
	return domain.Subject{
		ID:        domain.UserID(r.ID),
		Username:  r.Username,
		IsBot:     r.IsBot,
		IsChannel: r.IsChannel,
	}
}

type actionRequest struct {
	Kind            string          `json:"kind" validate:"required,max=32"`
	ChatID          int64           `json:"chat_id"`
	Caller          subjectRequest  `json:"caller" validate:"required"`
	CallerIsAdmin   *bool           `json:"caller_is_admin"`
	CallerIsTrusted *bool           `json:"caller_is_trusted"`
	Target          *subjectRequest `json:"target"`
}

func (r actionRequest) toDomain() *domain.Request {
	req := &domain.Request{
		Kind:            domain.ActionKind(r.Kind),
		ChatID:          r.ChatID,
		Caller:          r.Caller.toDomain(),
		CallerIsAdmin:   r.CallerIsAdmin,
		CallerIsTrusted: r.CallerIsTrusted,
	}
	if r.Target != nil {
		target := r.Target.toDomain()
		req.Target = &target
	}
	return req
}

// handleAction answers 200 for every evaluated request, including rule rejections,
// which carry outcome "rejected" and a reason. Non-2xx means the request was not evaluated.
func (s *Server) handleAction(c echo.Context) error {
	var body actionRequest
	if err := c.Bind(&body); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	if err := s.validate.Struct(body); err != nil {
		return validationError(err)
	}

	res, err := s.app.Handle(c.Request().Context(), body.toDomain())
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, res); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetUser(c echo.Context) error {
	raw := c.Param("id")
	userID, err := domain.ParseUserID(raw)
	if err != nil {
		return apperrors.ValidationError("invalid user id").WithField("user_id", raw)
	}

	rec, err := s.app.GetRecord(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, rec); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func validationError(err error) *apperrors.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.ValidationError("invalid request")
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+" "+fe.Tag())
	}
	return apperrors.ValidationError("invalid request").WithField("fields", strings.Join(fields, ", "))
}
