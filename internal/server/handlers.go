package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"trade-settlement/internal/auth"
	"trade-settlement/internal/notify"
	"trade-settlement/internal/session"
	"trade-settlement/internal/trade"
	"trade-settlement/internal/workflow"
)

const (
	localCredential = "credential"
	localSubject    = "subject"
)

type sessionResponse struct {
	ID string `json:"id"`
	workflow.View
}

func (s *Server) requireBearer(c *fiber.Ctx) error {
	if s.deps.Verifier == nil {
		return writeError(c, auth.ErrInvalidCredential, nil)
	}

	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return writeError(c, auth.ErrMissingCredential, nil)
	}

	claims, err := s.deps.Verifier.Verify(token)
	if err != nil {
		return writeError(c, err, nil)
	}

	c.Locals(localCredential, auth.Credential{Token: token, ExpiresAt: claims.ExpiresAt})
	c.Locals(localSubject, claims.Subject)
	return c.Next()
}

func credentialOf(c *fiber.Ctx) auth.Credential {
	cred, _ := c.Locals(localCredential).(auth.Credential)
	return cred
}

func (s *Server) getQuote(c *fiber.Ctx) error {
	pair := trade.NewPair(c.Query("base"), c.Query("quote"))
	q, err := s.deps.Quoter.Quote(c.UserContext(), pair)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(q)
}

func (s *Server) postTrade(c *fiber.Ctx) error {
	var req trade.Request
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fmt.Errorf("%w: malformed body: %v", trade.ErrInvalidRequest, err), nil)
	}

	rec, err := s.deps.Executor.Execute(c.UserContext(), req)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.Status(fiber.StatusOK).JSON(rec)
}

func (s *Server) createSession(c *fiber.Ctx) error {
	id := session.NewID()
	owner := subjectOf(c)
	ctrl, err := s.controller(id, workflow.Snapshot{})
	if err != nil {
		return writeError(c, err, nil)
	}

	if err := s.save(c.UserContext(), id, owner, ctrl); err != nil {
		return writeError(c, err, nil)
	}

	s.logger.Info().Str("session_id", id).Str("subject", owner).Msg("session created")
	return c.Status(fiber.StatusCreated).JSON(sessionResponse{ID: id, View: ctrl.View()})
}

func (s *Server) getSession(c *fiber.Ctx) error {
	id := c.Params("id")
	ctrl, err := s.load(c.UserContext(), id, subjectOf(c))
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(sessionResponse{ID: id, View: ctrl.View()})
}

func (s *Server) sessionAction(c *fiber.Ctx) error {
	id := c.Params("id")
	action, ok := workflow.ParseAction(c.Params("action"))
	if !ok {
		return writeError(c, fiber.NewError(fiber.StatusNotFound, "unknown action"), nil)
	}

	var req trade.Request
	if action == workflow.ActionSubmit {
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fmt.Errorf("%w: malformed body: %v", trade.ErrInvalidRequest, err), nil)
		}
	}

	ctx := c.UserContext()
	owner := subjectOf(c)
	unlock, err := s.deps.Sessions.Lock(ctx, id)
	if err != nil {
		return writeError(c, err, nil)
	}
	defer unlock()

	ctrl, err := s.load(ctx, id, owner)
	if err != nil {
		return writeError(c, err, nil)
	}

	actErr := ctrl.Apply(ctx, action, req, credentialOf(c))

	if err := s.save(ctx, id, owner, ctrl); err != nil {
		return writeError(c, err, nil)
	}

	resp := sessionResponse{ID: id, View: ctrl.View()}
	if actErr != nil {
		return writeError(c, actErr, &resp)
	}
	return c.JSON(resp)
}

// load restores the session id on behalf of owner. A session created by
// another subject is reported as not found.
func (s *Server) load(ctx context.Context, id, owner string) (*workflow.Controller, error) {
	snap, err := s.deps.Sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.Owner != owner {
		s.logger.Warn().Str("session_id", id).Str("subject", owner).Msg("session requested by another subject")
		return nil, session.ErrNotFound
	}
	ctrl, err := s.controller(id, snap)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Msg("failed to restore session")
		return nil, err
	}
	return ctrl, nil
}

func (s *Server) save(ctx context.Context, id, owner string, ctrl *workflow.Controller) error {
	snap := ctrl.Snapshot()
	snap.Owner = owner
	return s.deps.Sessions.Save(ctx, id, snap)
}

func (s *Server) controller(id string, snap workflow.Snapshot) (*workflow.Controller, error) {
	opts := s.deps.Workflow
	opts.OnSettle = func(ctx context.Context, rec trade.Record) {
		note := notify.Settlement{SessionID: id, Record: rec, SettledAt: time.Now().UTC()}
		if err := s.deps.Notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("session_id", id).Msg("failed to send settlement notification")
		}
	}
	logger := s.logger.With().Str("session_id", id).Logger()
	return workflow.Restore(snap, s.deps.Quoter, workflow.InProcess(s.deps.Executor), opts, logger)
}

func subjectOf(c *fiber.Ctx) string {
	subject, _ := c.Locals(localSubject).(string)
	return subject
}
