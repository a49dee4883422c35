package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"onboarding-api/backend"
	"onboarding-api/domain"
	"onboarding-api/gate"
	"onboarding-api/state"
)

const (
	setAnswerMaxSize     = 16 * 1024
	idempotencyKeyHeader = "Idempotency-Key"
	profileUpsertTimeout = 5 * time.Second
	enqueueTimeout       = 15 * time.Second
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Sessions Sessions
	Events   EventPublisher
	Auth     Authenticator
	Deduper  Deduper
	Profiles ProfileWriter
	Flow     domain.Flow
	Logger   log.FieldLogger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	h := &handlers{Deps: d}

	g := e.Group("/api", observe(d.Logger))
	authed := requireUser(d.Auth, false)
	g.POST("/session", h.launchSession, authed)
	g.GET("/onboarding/flow", h.getFlow, authed)
	g.GET("/intake", h.getIntake, authed)
	g.PUT("/intake/answers/:key", h.setAnswer, authed)
	g.DELETE("/intake", h.resetIntake, authed)
	g.POST("/intake/result", h.postResult, authed)
	g.GET("/gate", h.getGate, authed)
	g.GET("/gate/stream", h.streamGate, requireUser(d.Auth, true))

	e.GET("/healthz", healthz)
}

type handlers struct {
	Deps
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// POST /api/session response body
type sessionResponse struct {
	SessionID string                `json:"sessionId"`
	StartedAt time.Time             `json:"startedAt"`
	App       state.HydrationStatus `json:"app"`
	Intake    state.HydrationStatus `json:"intake"`
}

// GET /api/intake response body
type intakeResponse struct {
	SessionID   string         `json:"sessionId"`
	IsHydrating bool           `json:"isHydrating"`
	Answers     domain.Answers `json:"answers"`
	Complete    bool           `json:"complete"`
	Next        domain.Step    `json:"next"`
}

// PUT /api/intake/answers/:key request body
type setAnswerRequest struct {
	Value domain.Answer `json:"value"`
}

// POST /api/intake/result response body
type resultResponse struct {
	Estimate       int    `json:"estimate"`
	IdempotencyKey string `json:"idempotencyKey"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Target         string `json:"target"`
}

func (h *handlers) launchSession(c echo.Context) error {
	s := h.Sessions.Launch(userFrom(c))
	metricsFrom(c).Set("session_launched", true)
	return c.JSON(http.StatusCreated, sessionResponse{
		SessionID: s.ID,
		StartedAt: s.StartedAt,
		App:       s.App.HydrationStatus(),
		Intake:    s.Intake.HydrationStatus(),
	})
}

func (h *handlers) getFlow(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Flow)
}

func (h *handlers) getIntake(c echo.Context) error {
	s := h.Sessions.Get(userFrom(c))
	return c.JSON(http.StatusOK, h.intakeView(s.ID, s.Intake))
}

func (h *handlers) intakeView(sessionID string, store *state.IntakeStore) intakeResponse {
	answers := store.Answers()
	return intakeResponse{
		SessionID:   sessionID,
		IsHydrating: store.IsHydrating(),
		Answers:     answers,
		Complete:    h.Flow.Complete(answers),
		Next:        h.Flow.Resume(answers),
	}
}

func (h *handlers) setAnswer(c echo.Context) error {
	m := metricsFrom(c)
	key := c.Param("key")
	if !h.Flow.HasQuestion(key) {
		m.SetErrorStage("unknown_question")
		return c.String(http.StatusNotFound, "unknown question")
	}

	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, setAnswerMaxSize))
	dec.DisallowUnknownFields()
	var req setAnswerRequest
	if err := dec.Decode(&req); err != nil {
		m.SetErrorStage("decode")
		return c.String(http.StatusBadRequest, "invalid body")
	}
	m.Set("answer_kind", req.Value.Kind.String())

	s := h.Sessions.Get(userFrom(c))
	s.Intake.SetAnswer(key, req.Value)
	return c.JSON(http.StatusOK, h.intakeView(s.ID, s.Intake))
}

func (h *handlers) resetIntake(c echo.Context) error {
	h.Sessions.Get(userFrom(c)).Intake.Reset()
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) postResult(c echo.Context) error {
	m := metricsFrom(c)
	ctx := c.Request().Context()
	userID := userFrom(c)
	s := h.Sessions.Get(userID)
	if s.Intake.IsHydrating() {
		m.SetErrorStage("hydrating")
		return c.String(http.StatusConflict, "intake is still hydrating")
	}

	answers := s.Intake.Answers()
	estimate := domain.Estimate(answers)
	m.Set("estimate", estimate)
	m.Set("answers", answers.Len())

	key := strings.TrimSpace(c.Request().Header.Get(idempotencyKeyHeader))
	if key == "" {
		key = uuid.NewString()
	}
	resp := resultResponse{Estimate: estimate, IdempotencyKey: key, Target: h.Flow.HomeRoute}

	added, err := h.Deduper.Add(ctx, userID, key)
	if err != nil {
		m.Fail("deduper", err)
		return c.String(http.StatusInternalServerError, "failed to record submission")
	}
	if !added {
		m.Set("duplicate", true)
		resp.Duplicate = true
		return c.JSON(http.StatusOK, resp)
	}

	data, err := sonic.Marshal(domain.IntakeCompletedData{Answers: answers, Estimate: estimate})
	if err != nil {
		h.forget(userID, key)
		m.Fail("encode_event", err)
		return c.String(http.StatusInternalServerError, "failed to encode event")
	}
	ts := nextTimestamp()
	ev := domain.Event{
		ID:         key,
		EntityType: domain.EntityTypeIntake,
		Type:       domain.IntakeCompleted,
		Data:       sonic.NoCopyRawMessage(data),
		Timestamp:  ts,
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	start := time.Now()
	err = h.Events.EnqueueEvents(enqueueCtx, userID, []domain.Event{ev})
	cancel()
	m.Observe("enqueue", time.Since(start))
	if err != nil {
		h.forget(userID, key)
		m.Fail("enqueue", err)
		return c.String(http.StatusInternalServerError, "failed to enqueue event")
	}

	s.App.Update(func(st *domain.AppState) {
		st.OnboardingCompleted = true
		st.LastEstimate = &estimate
		st.UpdatedAt = ts
	})
	h.upsertProfile(ctx, userID, estimate)

	return c.JSON(http.StatusOK, resp)
}

// forget drops an idempotency key after a failed submission so the client can
// retry with the same key.
func (h *handlers) forget(userID, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Deduper.Remove(ctx, userID, key); err != nil {
		h.Logger.WithError(err).WithField("user", userID).Warn("failed to remove idempotency key")
	}
}

func (h *handlers) upsertProfile(ctx context.Context, userID string, estimate int) {
	if h.Profiles == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), profileUpsertTimeout)
	defer cancel()
	err := h.Profiles.UpsertProfile(ctx, backend.Profile{
		UserID:              userID,
		Estimate:            estimate,
		OnboardingCompleted: true,
	})
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrNotConfigured):
		h.Logger.WithField("user", userID).Debug("backend not configured; profile not mirrored")
	default:
		h.Logger.WithError(err).WithField("user", userID).Warn("profile upsert failed")
	}
}

func (h *handlers) getGate(c echo.Context) error {
	s := h.Sessions.Get(userFrom(c))
	d := gate.New(s.App, s.Intake, h.Flow.HomeRoute).Evaluate()
	metricsFrom(c).Set("gate_action", d.Action.String())
	return c.JSON(http.StatusOK, d)
}

// streamGate mounts one gate for the lifetime of the request and pushes each
// rendered decision as a server-sent event.
func (h *handlers) streamGate(c echo.Context) error {
	m := metricsFrom(c)
	s := h.Sessions.Get(userFrom(c))
	release := s.Hold()
	defer release()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		m.SetErrorStage("stream_unsupported")
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	renders := 0
	g := gate.New(s.App, s.Intake, h.Flow.HomeRoute)
	err := g.Run(c.Request().Context(), func(d gate.Decision) error {
		data, err := sonic.Marshal(d)
		if err != nil {
			return err
		}
		w := c.Response()
		if _, err := w.Write([]byte("event: " + d.Action.String() + "\ndata: ")); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		renders++
		return nil
	})
	m.Set("gate_renders", renders)
	m.Set("gate_redirected", g.Fired())
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		m.Fail("stream", err)
		c.Logger().Error(err)
	}
	return nil
}
