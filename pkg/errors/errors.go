package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
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
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeProjectNotFound   Code = "PROJECT_NOT_FOUND"
	CodeAmountTooLow      Code = "AMOUNT_TOO_LOW"
	CodeCapacityExceeded  Code = "CAPACITY_EXCEEDED"
	CodePortfolioNotFound Code = "PORTFOLIO_NOT_FOUND"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeNotCancellable    Code = "NOT_CANCELLABLE"
	CodeKYCRequired       Code = "KYC_REQUIRED"
	CodeInvalidFundSource Code = "INVALID_FUND_SOURCE"
	CodeReferralCycle     Code = "REFERRAL_CYCLE"
	CodeRequestPending    Code = "REQUEST_ALREADY_PENDING"
	CodeReviewDisallowed  Code = "REVIEW_DISALLOWED"
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
	CodeRateLimit: {
		HTTPStatus:     http.StatusTooManyRequests,
		Retryable:      false,
		PublicMessage:  "rate limit exceeded",
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
	CodeProjectNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "project not found or not open for investment",
	},
	CodeAmountTooLow: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "amount is below the minimum investment",
		DetailsAllowed: true,
	},
	CodeCapacityExceeded: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "amount exceeds the remaining project capacity",
		DetailsAllowed: true,
	},
	CodePortfolioNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "portfolio not found",
	},
	CodeInsufficientFunds: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "insufficient funds in the selected source",
		DetailsAllowed: true,
	},
	CodeNotCancellable: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "project cannot be cancelled",
	},
	CodeKYCRequired: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "identity verification required",
	},
	CodeInvalidFundSource: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "invalid fund source",
	},
	CodeReferralCycle: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "invalid referral relationship",
	},
	CodeRequestPending: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "a request is already pending",
	},
	CodeReviewDisallowed: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "request is not pending review",
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

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
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
