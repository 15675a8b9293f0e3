package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrInvalidOrder           = errors.New("invalid order")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrUnsupportedEvent       = errors.New("unsupported webhook event")
	ErrRefundUnsupported      = errors.New("refund not supported by gateway")

	// ErrStatusMismatch is returned by the store when a compare-and-swap finds a
	// different status than expected. The saga turns it into a TransitionError.
	ErrStatusMismatch = errors.New("stored status does not match expected status")
)

// TransitionError reports a rejected saga transition.
type TransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// GatewayError wraps a failed provider call. It matches ErrGatewayUnavailable
// with errors.Is while keeping the provider's own error reachable.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGatewayUnavailable }
