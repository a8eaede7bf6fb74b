package services

import (
	"fmt"
	"time"

	"github.com/valtrilabs/cafe-backend/models"
)

// ErrorKind groups failures by what the client should do about them.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindAuthFailure        ErrorKind = "auth_failure"
	KindNotFound           ErrorKind = "not_found"
	KindConflict           ErrorKind = "conflict"
	KindRateLimited        ErrorKind = "rate_limited"
	KindStorageUnavailable ErrorKind = "storage_unavailable"
)

// Error is the error type returned by every service in this package.
// Two errors match under errors.Is when their Codes are equal.
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) with(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

var (
	ErrInvalidTable          = &Error{Kind: KindInvalidInput, Code: "invalid_table", Message: "table number is out of range"}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput, Code: "invalid_input", Message: "invalid input"}
	ErrEmptyOrder            = &Error{Kind: KindInvalidInput, Code: "empty_order", Message: "order must contain at least one item"}
	ErrInvalidQuantity       = &Error{Kind: KindInvalidInput, Code: "invalid_quantity", Message: "quantity must be at least 1"}
	ErrUnknownMenuItem       = &Error{Kind: KindInvalidInput, Code: "unknown_menu_item", Message: "unknown menu item"}
	ErrMenuItemUnavailable   = &Error{Kind: KindInvalidInput, Code: "menu_item_unavailable", Message: "menu item is not available"}
	ErrInvalidStatus         = &Error{Kind: KindInvalidInput, Code: "invalid_status", Message: "unknown order status"}
	ErrInvalidTransition     = &Error{Kind: KindInvalidInput, Code: "invalid_transition", Message: "order status transition is not allowed"}
	ErrPaymentMethodRequired = &Error{Kind: KindInvalidInput, Code: "payment_method_required", Message: "payment method is required for this status"}
	ErrInvalidPaymentMethod  = &Error{Kind: KindInvalidInput, Code: "invalid_payment_method", Message: "unknown payment method"}

	ErrSessionNotFound = &Error{Kind: KindAuthFailure, Code: "session_not_found", Message: "session not found"}
	ErrSessionInactive = &Error{Kind: KindAuthFailure, Code: "session_inactive", Message: "session is no longer active"}
	ErrSessionExpired  = &Error{Kind: KindAuthFailure, Code: "session_expired", Message: "session has expired"}
	ErrOrderFinalized  = &Error{Kind: KindAuthFailure, Code: "order_finalized", Message: "the order for this session is finalized"}
	ErrSessionConsumed = &Error{Kind: KindAuthFailure, Code: "session_consumed", Message: "an order was already placed with this session"}
	ErrTableMismatch   = &Error{Kind: KindAuthFailure, Code: "table_mismatch", Message: "session belongs to a different table"}

	ErrOrderNotFound     = &Error{Kind: KindNotFound, Code: "order_not_found", Message: "order not found"}
	ErrNoOrderForSession = &Error{Kind: KindNotFound, Code: "no_order_for_session", Message: "no order has been placed with this session"}
	ErrStaffCallNotFound = &Error{Kind: KindNotFound, Code: "staff_call_not_found", Message: "staff call not found"}
	ErrUnknownSession    = &Error{Kind: KindNotFound, Code: "unknown_session", Message: "session not found"}

	ErrTokenCollision       = &Error{Kind: KindConflict, Code: "token_collision", Message: "could not issue a unique session token"}
	ErrDuplicateOrderNumber = &Error{Kind: KindConflict, Code: "duplicate_order_number", Message: "could not allocate a unique order number"}
	ErrConcurrentUpdate     = &Error{Kind: KindConflict, Code: "concurrent_update", Message: "order was modified concurrently"}

	ErrRateLimited        = &Error{Kind: KindRateLimited, Code: "rate_limited", Message: "too many session requests for this table"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Code: "storage_unavailable", Message: "storage unavailable"}
)

func unknownMenuItem(id uint) *Error {
	return ErrUnknownMenuItem.with(fmt.Sprintf("unknown menu item %d", id))
}

func menuItemUnavailable(id uint) *Error {
	return ErrMenuItemUnavailable.with(fmt.Sprintf("menu item %d is not available", id))
}

func invalidQuantity(id uint, qty int) *Error {
	return ErrInvalidQuantity.with(fmt.Sprintf("quantity for item %d must be at least 1, got %d", id, qty))
}

func invalidTransition(from, to models.OrderStatus) *Error {
	return ErrInvalidTransition.with(fmt.Sprintf("cannot move order from %s to %s", from, to))
}

func rateLimited(retryAfter time.Duration) *Error {
	e := *ErrRateLimited
	e.RetryAfter = retryAfter
	return &e
}

func storageUnavailable(op string, err error) *Error {
	e := *ErrStorageUnavailable
	e.Err = fmt.Errorf("%s: %w", op, err)
	return &e
}
