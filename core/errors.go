package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DeliveryErrorBadInput           = "DELIVERY_BAD_INPUT"
	DeliveryErrorBrandNotConfigured = "DELIVERY_BRAND_NOT_CONFIGURED"
	DeliveryErrorSendFailed         = "DELIVERY_SEND_FAILED"
	DeliveryErrorLedgerAppend       = "DELIVERY_LEDGER_APPEND_FAILED"
	DeliveryErrorReconcileExhausted = "DELIVERY_RECONCILE_EXHAUSTED"
	DeliveryErrorInternal           = "DELIVERY_INTERNAL_ERROR"
)

func deliveryErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureDeliveryErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "brand") && strings.Contains(msg, "credential"):
		return newDeliveryError(err.Error(), goerrors.CategoryOperation, DeliveryErrorBrandNotConfigured)
	case strings.Contains(msg, "ledger append"):
		return newDeliveryError(err.Error(), goerrors.CategoryOperation, DeliveryErrorLedgerAppend)
	case strings.Contains(msg, "reconcil") && strings.Contains(msg, "exhaust"):
		return newDeliveryError(err.Error(), goerrors.CategoryOperation, DeliveryErrorReconcileExhausted)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newDeliveryError(err.Error(), goerrors.CategoryBadInput, DeliveryErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureDeliveryErrorEnvelope(mapped)
}

func newDeliveryError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureDeliveryErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureDeliveryErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = deliveryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultDeliveryTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultDeliveryTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return DeliveryErrorBadInput
	case goerrors.CategoryOperation:
		return DeliveryErrorSendFailed
	default:
		return DeliveryErrorInternal
	}
}

func deliveryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
