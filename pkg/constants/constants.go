package constants

import "github.com/go-playground/validator/v10"

type ContextKey string

const (
	PoolKey     ContextKey = "pool"
	TxKey       ContextKey = "tx"
	TenantIDKey ContextKey = "tenant_id"
	UserKey     ContextKey = "user"
	LoggerKey   ContextKey = "logger"
	ParamsKey   ContextKey = "params"
)

// Validate is the shared validator instance for presentation DTOs.
var Validate = validator.New(validator.WithRequiredStructEnabled())
