package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"contratto/models"

	"github.com/stretchr/testify/assert"
)

func TestStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("order x: %w", models.ErrNotFound), http.StatusNotFound},
		{models.ErrForbidden, http.StatusForbidden},
		{&models.TransitionError{OrderID: "o", From: models.OrderCreated, To: models.OrderCompleted}, http.StatusConflict},
		{models.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{models.ErrInvalidAmount, http.StatusBadRequest},
		{models.ErrInvalidSignature, http.StatusBadRequest},
		{&models.GatewayError{Gateway: "stripe", Op: "capture", Err: errors.New("boom")}, http.StatusBadGateway},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFromError(tc.err), "%v", tc.err)
	}
}
