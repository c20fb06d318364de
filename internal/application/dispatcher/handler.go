package dispatcher

import (
	"context"
	"fmt"

	"github.com/garyjia/workflow-engine/internal/domain/event"
	"go.uber.org/zap"
)

// Handler processes transition events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
	Async     bool
}

// TransitionHandler receives decoded before_transition and after_transition payloads
type TransitionHandler func(ctx context.Context, notice *event.TransitionNotice) error

// FailureHandler receives decoded transition_failed payloads
type FailureHandler func(ctx context.Context, notice *event.FailureNotice) error

// TransitionFunc adapts a typed handler to the raw Handler signature
func TransitionFunc(h TransitionHandler) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		notice, err := evt.DecodeTransition()
		if err != nil {
			return err
		}
		return h(ctx, notice)
	}
}

// FailureFunc adapts a typed handler to the raw Handler signature
func FailureFunc(h FailureHandler) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		notice, err := evt.DecodeFailure()
		if err != nil {
			return err
		}
		return h(ctx, notice)
	}
}

// OnTransition subscribes a typed handler to before_transition or after_transition
func OnTransition(d Dispatcher, eventType event.Type, name string, h TransitionHandler) error {
	if eventType != event.TypeBeforeTransition && eventType != event.TypeAfterTransition {
		return fmt.Errorf("event type %s does not carry a transition payload", eventType)
	}
	d.SubscribeNamed(eventType, name, TransitionFunc(h))
	return nil
}

// OnFailure subscribes a typed handler to transition_failed
func OnFailure(d Dispatcher, name string, h FailureHandler) {
	d.SubscribeNamed(event.TypeTransitionFailed, name, FailureFunc(h))
}

// zapLogger adapts a zap logger to the dispatcher Logger interface
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps a zap logger for use with WithLogger
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{sugar: logger.Sugar()}
}

func (l *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}
