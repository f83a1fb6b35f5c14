// Package apperr is the error taxonomy shared by the trading engines and
// the HTTP layer. Every business rejection carries a stable code and the
// HTTP status it should surface with, so handlers never inspect error text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// As unwraps err into an *Error, if it is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	CodeInsufficientHolding = "INSUFFICIENT_HOLDING"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeOrderNotOpen        = "ORDER_NOT_OPEN"
	CodeInvalidOrderType    = "INVALID_ORDER_TYPE"
	CodePositionNotFound    = "POSITION_NOT_FOUND"
	CodePositionExists      = "POSITION_EXISTS"
	CodePriceUnavailable    = "PRICE_UNAVAILABLE"
	CodePriceDrift          = "PRICE_DRIFT_EXCEEDED"
	CodeLedgerConflict      = "LEDGER_CONFLICT"
	CodeUnsupportedSymbol   = "UNSUPPORTED_SYMBOL"
	CodeUnauthenticated     = "UNAUTHENTICATED"
)

func Validation(message string) *Error {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func InvalidAmount(field string) *Error {
	return New(CodeInvalidAmount, field+" must be a positive number", http.StatusBadRequest)
}

func InsufficientFunds(wallet string) *Error {
	return New(CodeInsufficientFunds, "insufficient "+wallet+" cashUSDT", http.StatusConflict)
}

func InsufficientHolding(symbol string) *Error {
	return New(CodeInsufficientHolding, "insufficient holding qty for "+symbol, http.StatusConflict)
}

func AccountNotFound() *Error {
	return New(CodeAccountNotFound, "account not found", http.StatusNotFound)
}

func OrderNotFound() *Error {
	return New(CodeOrderNotFound, "order not found", http.StatusNotFound)
}

func OrderNotOpen() *Error {
	return New(CodeOrderNotOpen, "order not found or not open", http.StatusBadRequest)
}

func InvalidOrderType(message string) *Error {
	return New(CodeInvalidOrderType, message, http.StatusBadRequest)
}

func PositionNotFound() *Error {
	return New(CodePositionNotFound, "futures position not found", http.StatusNotFound)
}

func PositionExists() *Error {
	return New(CodePositionExists, "position already exists for this symbol", http.StatusConflict)
}

func PriceUnavailable(symbol string) *Error {
	return New(CodePriceUnavailable, "no reference price available for "+symbol, http.StatusBadGateway)
}

func PriceDrift(message string) *Error {
	return New(CodePriceDrift, message, http.StatusBadRequest)
}

func LedgerConflict() *Error {
	return New(CodeLedgerConflict, "concurrent ledger update conflict, retry the operation", http.StatusConflict)
}

func UnsupportedSymbol(symbol string) *Error {
	return New(CodeUnsupportedSymbol, "symbol "+symbol+" is not supported", http.StatusBadRequest)
}

func Unauthenticated(message string) *Error {
	return New(CodeUnauthenticated, message, http.StatusUnauthorized)
}
