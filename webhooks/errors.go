package webhooks

import (
	"net/http"

	"github.com/ckgmra/amare-api/core"
	goerrors "github.com/goliatone/go-errors"
)

func webhookUnauthorizedError(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.DeliveryErrorBadInput)
}

func webhookBadPayloadError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.DeliveryErrorBadInput)
}
