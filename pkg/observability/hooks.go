package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/troupe/pkg/domain"
)

// LogHooks returns lifecycle hooks that log every event at debug level,
// and actor failures at error level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnActorStart: func(ctx context.Context, e *domain.ActorEvent) {
			logger.DebugContext(ctx, "actor_start",
				"actor_id", e.ActorID,
				"session_id", e.SessionID,
				"logic", e.Logic,
			)
		},
		OnActorStop: func(ctx context.Context, e *domain.ActorEvent) {
			logger.DebugContext(ctx, "actor_stop",
				"actor_id", e.ActorID,
				"session_id", e.SessionID,
				"status", e.Status,
			)
		},
		OnActorError: func(ctx context.Context, e *domain.ActorEvent) {
			logger.ErrorContext(ctx, "actor_error",
				"actor_id", e.ActorID,
				"session_id", e.SessionID,
				"logic", e.Logic,
				"err", e.Err,
			)
		},
		OnEvent: func(ctx context.Context, e *domain.MessageEvent) {
			logger.DebugContext(ctx, "event_processed",
				"actor_id", e.ActorID,
				"event", e.Event.Type,
				"status", e.Status,
				"duration", e.Duration,
			)
		},
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.DebugContext(ctx, "transition",
				"actor_id", e.ActorID,
				"event", e.EventType,
				"source", e.Source,
				"targets", e.Targets,
			)
		},
	}
}

// Combine returns hooks that call each of the given hooks in order.
func Combine(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range all {
		out.OnActorStart = chain(out.OnActorStart, h.OnActorStart)
		out.OnActorStop = chain(out.OnActorStop, h.OnActorStop)
		out.OnActorError = chain(out.OnActorError, h.OnActorError)
		out.OnEvent = chain(out.OnEvent, h.OnEvent)
		out.OnTransition = chain(out.OnTransition, h.OnTransition)
	}
	return out
}

func chain[E any](first, next func(context.Context, E)) func(context.Context, E) {
	switch {
	case first == nil:
		return next
	case next == nil:
		return first
	}
	return func(ctx context.Context, e E) {
		first(ctx, e)
		next(ctx, e)
	}
}
