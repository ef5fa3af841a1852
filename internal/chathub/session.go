package chathub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pairchat/backend/internal/complaint"
	"pairchat/backend/internal/metrics"
	"pairchat/backend/internal/models"
	"pairchat/backend/internal/ratelimit"
)

// ComplaintHandler records partner reports.
type ComplaintHandler interface {
	HandleComplaint(ctx context.Context, reporter, target, roomID, severity, reason string) (complaint.Outcome, error)
}

// RateLimiter decides whether an identifier may perform an action now.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) bool
}

// Router is the connection session layer: it turns inbound client events
// into matcher and hub calls and reports failures back to the client.
type Router struct {
	Hub        *ManagerService
	Matcher    *MatcherService
	Complaints ComplaintHandler
	Limiter    RateLimiter
	log        *slog.Logger
}

// NewRouter wires a router. complaints and limiter may be nil.
func NewRouter(hub *ManagerService, matcher *MatcherService, complaints ComplaintHandler, limiter RateLimiter, log *slog.Logger) *Router {
	return &Router{Hub: hub, Matcher: matcher, Complaints: complaints, Limiter: limiter, log: log}
}

// Connect registers a new connection with the hub.
func (r *Router) Connect(c Client) {
	r.Hub.Register(c)
}

// Disconnect drops c from the queue and the hub. Room membership is kept
// for the reconnect grace period.
func (r *Router) Disconnect(c Client) {
	r.Matcher.LeaveQueue(c)
	r.Hub.Unregister(c)
}

// HandleEvent dispatches one inbound event from c.
func (r *Router) HandleEvent(ctx context.Context, c Client, ev models.ClientEvent) error {
	err := r.dispatch(ctx, c, ev)
	if err != nil {
		r.reportError(c, ev.Type, err)
	}
	return err
}

func (r *Router) dispatch(ctx context.Context, c Client, ev models.ClientEvent) error {
	switch ev.Type {
	case models.EventRequestMatch:
		id, err := ResolveFingerprint(c.GetProfile(), ev.Fingerprint)
		if err != nil {
			return err
		}
		if id == "" {
			id = c.GetHandle()
		}
		if !r.allow(ctx, id, ratelimit.RuleMatch) {
			return fmt.Errorf("match requests: %w", models.ErrRateLimited)
		}
		return r.Matcher.RequestMatch(ctx, c, MatchRequest{
			DisplayName: ev.Name,
			Interests:   ev.Interests,
			Fingerprint: ev.Fingerprint,
		})

	case models.EventSendMessage:
		if ev.Message == nil {
			return fmt.Errorf("missing message: %w", models.ErrValidation)
		}
		if !r.allow(ctx, r.identity(c), ratelimit.RuleMessage) {
			return fmt.Errorf("messages: %w", models.ErrRateLimited)
		}
		_, err := r.Hub.PostMessage(ev.RoomID, c, *ev.Message)
		return err

	case models.EventReact:
		_, err := r.Hub.ReactToMessage(ev.RoomID, ev.MessageID, ev.Tag, c)
		return err

	case models.EventUnsend:
		return r.Hub.UnsendMessage(ev.RoomID, ev.MessageID, c)

	case models.EventLeaveRoom:
		return r.Hub.Leave(c)

	case models.EventLeaveQueue:
		r.Matcher.LeaveQueue(c)
		return nil

	case models.EventTyping:
		return r.Hub.Typing(ev.RoomID, c, ev.IsTyping)

	case models.EventReconnect:
		fp, err := ResolveFingerprint(c.GetProfile(), ev.Fingerprint)
		if err != nil {
			return err
		}
		if err := ValidateFingerprint(fp); err != nil {
			return err
		}
		r.Matcher.LeaveQueue(c)
		_, err = r.Hub.Reconnect(c, ev.RoomID, fp)
		return err

	case models.EventFetchMissed:
		var since time.Time
		if ev.Since > 0 {
			since = time.UnixMilli(ev.Since)
		}
		_, err := r.Hub.FetchMissed(ev.RoomID, c, since)
		return err

	case models.EventReport:
		return r.report(ctx, c, ev)
	}
	return fmt.Errorf("unknown event type %q: %w", ev.Type, models.ErrValidation)
}

func (r *Router) report(ctx context.Context, c Client, ev models.ClientEvent) error {
	if r.Complaints == nil {
		return nil
	}
	roomID, partner, ok := r.Hub.PartnerOf(c)
	if !ok {
		return fmt.Errorf("no partner to report: %w", models.ErrNotMember)
	}
	reporter := c.GetProfile().Fingerprint
	if !r.allow(ctx, reporter, ratelimit.RuleReport) {
		return fmt.Errorf("reports: %w", models.ErrRateLimited)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Hub.cfg.CollaboratorTimeout)
	defer cancel()
	out, err := r.Complaints.HandleComplaint(ctx, reporter, partner, roomID, ev.Severity, ev.Reason)
	if err != nil {
		if ctx.Err() != nil {
			metrics.CollaboratorFailures.WithLabelValues("complaints").Inc()
		}
		return err
	}
	if out.Banned {
		r.Matcher.Evict(partner)
	}
	return nil
}

func (r *Router) identity(c Client) string {
	if fp := c.GetProfile().Fingerprint; fp != "" {
		return fp
	}
	return c.GetHandle()
}

func (r *Router) allow(ctx context.Context, id string, rule ratelimit.Rule) bool {
	if r.Limiter == nil {
		return true
	}
	return r.Limiter.Allow(ctx, id, rule)
}

// errorCode maps the errors a client should hear about to a wire code.
// Everything else is only logged.
func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrBanned):
		return "banned"
	case errors.Is(err, models.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, models.ErrNotMember):
		return "not_member"
	}
	return ""
}

func (r *Router) reportError(c Client, eventType string, err error) {
	switch {
	case errors.Is(err, models.ErrDuplicateRequest), errors.Is(err, models.ErrNotFound):
		r.log.Debug("ignored event", "handle", c.GetHandle(), "type", eventType, "err", err)
		return
	}
	code := errorCode(err)
	if code == "" {
		r.log.Warn("event failed", "handle", c.GetHandle(), "type", eventType, "err", err)
		return
	}
	r.log.Info("event rejected", "handle", c.GetHandle(), "type", eventType, "err", err)
	r.Hub.Notify(c, models.ServerEvent{Type: models.EventError, Error: code, Reason: err.Error()})
}
