package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/taskflow/pkg/constants"
)

var (
	ErrNoTenantID = errors.New("no tenant id found in context")
)

// Params carries request-scoped metadata the engine records on audit rows.
type Params struct {
	IP            string
	UserAgent     string
	Authenticated bool
}

// UseParams returns the request parameters from the context.
// If the parameters are not found, the second return value will be false.
func UseParams(ctx context.Context) (*Params, bool) {
	params, ok := ctx.Value(constants.ParamsKey).(*Params)
	return params, ok
}

// WithParams returns a new context with the request parameters.
func WithParams(ctx context.Context, params *Params) context.Context {
	return context.WithValue(ctx, constants.ParamsKey, params)
}

func WithTenantID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.TenantIDKey, id)
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(constants.TenantIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrNoTenantID
	}
	return id, nil
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger from the context.
// If the logger is not found, function will panic.
func UseLogger(ctx context.Context) *logrus.Entry {
	logger := ctx.Value(constants.LoggerKey)
	if logger == nil {
		panic("logger not found")
	}
	return logger.(*logrus.Entry)
}

// TryUseLogger attempts to fetch the logger without panicking.
func TryUseLogger(ctx context.Context) (*logrus.Entry, bool) {
	logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry)
	return logger, ok
}
