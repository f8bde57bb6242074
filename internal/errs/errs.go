// Package errs defines gamebridge's error taxonomy as go-errors envelopes.
//
// Every error carries a category, a stable text code and an HTTP-style
// status so transports can map it without string matching.
package errs

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeAuthorization = "AUTHORIZATION_DENIED"
	CodeValidation    = "VALIDATION_FAILED"
	CodePersist       = "PERSIST_FAILED"
	CodeDelivery      = "DELIVERY_FAILED"
	CodeCorruptState  = "CORRUPT_STATE"
	CodeInternal      = "INTERNAL_ERROR"
)

func build(message string, category goerrors.Category, status int, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(status).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrap(source error, message string, category goerrors.Category, status int, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return build(message, category, status, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(status).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// Authorization reports a caller that may not perform the request.
func Authorization(message string) error {
	return build(message, goerrors.CategoryAuthz, http.StatusForbidden, CodeAuthorization, nil)
}

// Validation reports malformed input; state is never mutated.
func Validation(message string, metadata map[string]any) error {
	return build(message, goerrors.CategoryValidation, http.StatusBadRequest, CodeValidation, metadata)
}

// Persist reports a failed durable write whose in-memory effect already happened.
func Persist(source error, metadata map[string]any) error {
	return wrap(source, "registry could not be saved", goerrors.CategoryExternal, http.StatusInternalServerError, CodePersist, metadata)
}

// Delivery reports one failed destination of a fan-out.
func Delivery(source error, message string, metadata map[string]any) error {
	return wrap(source, message, goerrors.CategoryExternal, http.StatusBadGateway, CodeDelivery, metadata)
}

// CorruptState reports a persisted registry that cannot be trusted.
func CorruptState(source error, message string) error {
	return wrap(source, message, goerrors.CategoryInternal, http.StatusInternalServerError, CodeCorruptState, nil)
}

// Internal wraps an unexpected failure.
func Internal(source error, message string) error {
	return wrap(source, message, goerrors.CategoryInternal, http.StatusInternalServerError, CodeInternal, nil)
}

// Is reports whether err (or anything it wraps) carries textCode.
func Is(err error, textCode string) bool {
	for err != nil {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			return false
		}
		if rich.TextCode == textCode {
			return true
		}
		err = errors.Unwrap(rich)
	}
	return false
}

// Status maps err to an HTTP status; unknown errors are 500.
func Status(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code != 0 {
		return rich.Code
	}
	return http.StatusInternalServerError
}

// Message returns the envelope message without wrapped causes.
func Message(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && strings.TrimSpace(rich.Message) != "" {
		return rich.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
