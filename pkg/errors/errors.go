package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInvalidCampaignState   Code = "INVALID_CAMPAIGN_STATE"
	CodeInvalidPledgeState     Code = "INVALID_PLEDGE_STATE"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeUnauthorized: {
		HTTPStatus:     http.StatusUnauthorized,
		Retryable:      false,
		PublicMessage:  "authentication required",
		DetailsAllowed: false,
	},
	CodeForbidden: {
		HTTPStatus:     http.StatusForbidden,
		Retryable:      false,
		PublicMessage:  "access denied",
		DetailsAllowed: false,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		Retryable:      false,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeConflict: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "conflict detected",
		DetailsAllowed: false,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeIdempotency: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
	},
	CodeInvalidCampaignState: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "campaign is not in a state that allows this action",
		DetailsAllowed: true,
	},
	CodeInvalidPledgeState: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "pledge is not in a state that allows this action",
		DetailsAllowed: true,
	},
	CodeInvalidStateTransition: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the provided code anywhere in its chain.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// StateDetails names the state an operation required and the one it found.
type StateDetails struct {
	Required []string `json:"required"`
	Actual   string   `json:"actual"`
}

// TransitionDetails names a rejected from/to pair.
type TransitionDetails struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// InvalidCampaignState builds the error returned when a campaign is in the wrong status.
func InvalidCampaignState(actual string, required ...string) *Error {
	return New(CodeInvalidCampaignState, stateMessage("campaign", actual, required)).
		WithDetails(StateDetails{Required: required, Actual: actual})
}

// InvalidPledgeState builds the error returned when a pledge is in the wrong status.
func InvalidPledgeState(actual string, required ...string) *Error {
	return New(CodeInvalidPledgeState, stateMessage("pledge", actual, required)).
		WithDetails(StateDetails{Required: required, Actual: actual})
}

// InvalidTransition builds the error returned for a from/to pair missing from a transition table.
func InvalidTransition(from, to string) *Error {
	return New(CodeInvalidStateTransition, fmt.Sprintf("transition %s -> %s not allowed", from, to)).
		WithDetails(TransitionDetails{From: from, To: to})
}

func stateMessage(subject, actual string, required []string) string {
	return fmt.Sprintf("%s must be %s (current: %s)", subject, strings.Join(required, " or "), actual)
}
