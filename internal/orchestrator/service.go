// Package orchestrator composes extraction, slot filling and rendering into
// one request/response cycle per user message.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"helpdesk/internal/domain"
	"helpdesk/internal/engine"
	"helpdesk/internal/extract"
	"helpdesk/internal/render"
	"helpdesk/internal/schema"
	"helpdesk/internal/session"
)

const (
	clarifyText   = "I'm not sure I understood that. Could you rephrase your question?"
	fallbackText  = "I don't have a detailed answer for that right now. Please contact the university helpdesk for more information."
	transientText = "Something went wrong on my end. Please try again."
	greetingText  = "Hi there! I'm here to help with your university questions. What can I do for you?"
	goodbyeText   = "Goodbye! Feel free to return if you have more questions."
)

var greetings = map[string]bool{
	"hello": true, "hi": true, "hey": true, "good morning": true,
	"good afternoon": true, "good evening": true, "selam": true,
}

var goodbyes = map[string]bool{
	"bye": true, "goodbye": true, "see you": true, "thanks": true,
	"thank you": true, "that's all": true,
}

type Config struct {
	Thresholds     engine.Thresholds
	HistoryLimit   int
	ExtractTimeout time.Duration
	RenderTimeout  time.Duration
}

type Service struct {
	registry       *schema.Registry
	store          session.Store
	extractor      extract.Extractor
	renderer       render.Renderer
	locks          *session.KeyedMutex
	thresholds     engine.Thresholds
	historyLimit   int
	extractTimeout time.Duration
	renderTimeout  time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func New(cfg Config, registry *schema.Registry, store session.Store, extractor extract.Extractor, renderer render.Renderer, logger *slog.Logger) *Service {
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 5 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 5 * time.Second
	}
	return &Service{
		registry:       registry,
		store:          store,
		extractor:      extractor,
		renderer:       renderer,
		locks:          session.NewKeyedMutex(),
		thresholds:     cfg.Thresholds,
		historyLimit:   cfg.HistoryLimit,
		extractTimeout: cfg.ExtractTimeout,
		renderTimeout:  cfg.RenderTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// HandleMessage runs one conversation turn. Turns for the same session are
// serialized so a turn's state is committed before the next one starts;
// distinct sessions proceed in parallel.
func (s *Service) HandleMessage(ctx context.Context, sessionID, userText string) (domain.BotReply, error) {
	turnStart := s.now()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	log := s.logger.With("session_id", sessionID)

	state, err := s.store.CreateOrGet(ctx, sessionID)
	if err != nil {
		return domain.BotReply{}, err
	}

	if reply, ok := s.smallTalkReply(ctx, state, userText); ok {
		return reply, nil
	}

	extractCtx, cancelExtract := context.WithTimeout(ctx, s.extractTimeout)
	defer cancelExtract()

	extractStart := s.now()
	extraction, err := s.extractor.Extract(extractCtx, userText)
	extractDur := s.now().Sub(extractStart)
	if err != nil {
		if isTimeout(extractCtx, err) {
			// Committed state stays untouched so the user can retry
			// without losing slot progress.
			log.Warn("extractor timed out", "error", err)
			return s.transientReply(sessionID), nil
		}
		if errors.Is(err, extract.ErrUnavailable) {
			log.Warn("extractor unavailable, asking to rephrase", "error", err)
			return s.clarifyTurn(ctx, state, userText)
		}
		return domain.BotReply{}, err
	}

	next, action := engine.Advance(state, extraction, s.registry, s.thresholds)

	var text string
	var renderDur time.Duration
	switch action.Type {
	case domain.ActionClarify:
		text = clarifyText
	case domain.ActionAskFollowup:
		text = action.Question
	case domain.ActionRespond:
		renderCtx, cancelRender := context.WithTimeout(ctx, s.renderTimeout)
		renderStart := s.now()
		rendered, renderErr := s.renderer.Render(renderCtx, next.Intent, next.SlotStrings())
		renderDur = s.now().Sub(renderStart)
		cancelRender()
		if renderErr != nil {
			if isTimeout(renderCtx, renderErr) {
				log.Warn("renderer timed out", "intent", next.Intent, "error", renderErr)
				return s.transientReply(sessionID), nil
			}
			// Missing or broken template is an operator problem, not
			// the user's; answer with the generic fallback.
			log.Warn("render failed, using fallback text", "intent", next.Intent, "error", renderErr)
			text = fallbackText
		} else {
			text = rendered
		}
	}

	now := s.now()
	next.LastActiveAt = now
	next.AppendHistory(userText, text, now, s.historyLimit)

	if err := s.store.Save(ctx, next); err != nil {
		return domain.BotReply{}, err
	}

	log.Info("turn completed",
		"intent", next.Intent,
		"action", string(action.Type),
		"turn", next.TurnCount,
		"extract_ms", extractDur.Milliseconds(),
		"render_ms", renderDur.Milliseconds(),
		"total_ms", s.now().Sub(turnStart).Milliseconds(),
	)

	return domain.BotReply{
		SessionID:     sessionID,
		Text:          text,
		Intent:        next.Intent,
		Confidence:    extraction.Confidence,
		Slots:         next.SlotStrings(),
		MissingSlots:  s.missingSlots(next),
		NeedsFollowup: action.Type == domain.ActionAskFollowup,
	}, nil
}

// ResetSession discards a session's conversation state.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	return s.store.Reset(ctx, sessionID)
}

// ListIntents exposes the intent catalog in declaration order.
func (s *Service) ListIntents() []domain.IntentSpec {
	return s.registry.List()
}

// ExpireIdleSessions removes sessions idle longer than olderThan.
func (s *Service) ExpireIdleSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.store.ExpireIdle(ctx, olderThan)
}

// smallTalkReply short-circuits greetings and goodbyes before extraction.
// These turns still count and land in the history, but never touch intent or
// slot state.
func (s *Service) smallTalkReply(ctx context.Context, state *domain.ConversationState, userText string) (domain.BotReply, bool) {
	normalized := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(userText), "!.?")))

	var text string
	switch {
	case greetings[normalized]:
		text = greetingText
	case goodbyes[normalized]:
		text = goodbyeText
	default:
		return domain.BotReply{}, false
	}

	next := state.Clone()
	next.TurnCount++
	now := s.now()
	next.LastActiveAt = now
	next.AppendHistory(userText, text, now, s.historyLimit)

	if err := s.store.Save(ctx, next); err != nil {
		s.logger.Warn("save small-talk turn failed", "session_id", state.SessionID, "error", err)
	}

	return domain.BotReply{
		SessionID:  state.SessionID,
		Text:       text,
		Intent:     next.Intent,
		Confidence: 1.0,
		Slots:      next.SlotStrings(),
	}, true
}

// clarifyTurn records a rephrase prompt without running the engine, leaving
// intent and slot state exactly as they were.
func (s *Service) clarifyTurn(ctx context.Context, state *domain.ConversationState, userText string) (domain.BotReply, error) {
	next := state.Clone()
	next.TurnCount++
	now := s.now()
	next.LastActiveAt = now
	next.AppendHistory(userText, clarifyText, now, s.historyLimit)

	if err := s.store.Save(ctx, next); err != nil {
		return domain.BotReply{}, err
	}

	return domain.BotReply{
		SessionID:    next.SessionID,
		Text:         clarifyText,
		Intent:       next.Intent,
		Slots:        next.SlotStrings(),
		MissingSlots: s.missingSlots(next),
	}, nil
}

func (s *Service) transientReply(sessionID string) domain.BotReply {
	return domain.BotReply{
		SessionID: sessionID,
		Text:      transientText,
	}
}

func (s *Service) missingSlots(state *domain.ConversationState) []string {
	if state.Intent == "" {
		return nil
	}
	spec, ok := s.registry.Spec(state.Intent)
	if !ok {
		return nil
	}
	return spec.MissingSlots(state.Slots)
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
