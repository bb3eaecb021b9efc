// Package service implements the roommates use cases on top of the storage
// interfaces. Services are stateless and safe for concurrent use.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmynk/roommates/internal/apperr"
	"github.com/mmynk/roommates/internal/ident"
	"github.com/mmynk/roommates/internal/metrics"
	"github.com/mmynk/roommates/internal/storage"
	"github.com/mmynk/roommates/internal/telemetry"
)

// Options carries the optional collaborators shared by every service.
// Zero values select production defaults.
type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Location anchors week boundaries. Defaults to time.Local.
	Location *time.Location

	// StoreTimeout bounds each operation's store calls. Zero disables it.
	StoreTimeout time.Duration

	// Metrics records counters. Nil disables recording.
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// now returns the current time in the configured location.
func (o Options) now() time.Time {
	return o.Now().In(o.Location)
}

// begin starts the span for an operation and applies the store timeout.
// The returned finish function must be called with the operation's error.
func (o Options) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := telemetry.Tracer().Start(ctx, op, trace.WithAttributes(attrs...))
	cancel := context.CancelFunc(func() {})
	if o.StoreTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.StoreTimeout)
	}
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
		}
		cancel()
		span.End()
	}
}

// fail logs err at a level matching its kind and returns it. Domain
// rejections are warnings; dependency failures are errors.
func fail(logger *slog.Logger, msg string, err error, attrs ...any) error {
	attrs = append(attrs, "error", err, "code", apperr.CodeOf(err))
	if apperr.KindOf(err) == apperr.KindDependency {
		logger.Error(msg, attrs...)
	} else {
		logger.Warn(msg, attrs...)
	}
	return err
}

// validateIDs checks every (field, id) pair.
func validateIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := ident.ValidateID(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// lookupErr maps storage.ErrNotFound to code and anything else to a
// dependency failure. what names the record ("group", "task").
func lookupErr(err error, code apperr.Code, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.New(code, what+" not found")
	}
	return apperr.Dependency("failed to load "+what, err)
}

func userAttr(userID string) attribute.KeyValue {
	return attribute.String("user.id", userID)
}
