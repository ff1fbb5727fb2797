package serrors

import "fmt"

// BaseError is a coded error suitable for mapping to API payloads and
// localized messages. Code is stable and machine-readable, Message is the
// developer-facing default, LocaleKey addresses the translated variant.
type BaseError struct {
	Code         string
	Message      string
	LocaleKey    string
	TemplateData map[string]string
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithTemplateData returns a copy of the error carrying data for message
// templates. The receiver is not mutated so package-level sentinels stay
// safe to share.
func (e *BaseError) WithTemplateData(data map[string]string) *BaseError {
	clone := *e
	clone.TemplateData = data
	return &clone
}

// WithDetails appends formatted detail to the developer-facing message.
func (e *BaseError) WithDetails(format string, args ...any) *BaseError {
	clone := *e
	clone.Message = fmt.Sprintf("%s: %s", e.Message, fmt.Sprintf(format, args...))
	return &clone
}

// Is matches errors by code so wrapped copies created by WithTemplateData
// and WithDetails still satisfy errors.Is against the sentinel.
func (e *BaseError) Is(target error) bool {
	other, ok := target.(*BaseError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}
