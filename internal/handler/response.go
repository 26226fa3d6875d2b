package handler

import (
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Response is the envelope of every JSON body the API writes. Code carries the
// error code name (SLOT_CONFLICT, DUPLICATE_FEEDBACK, ...) on failures.
type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{Status: statusSuccess, Data: data}
}

func NewErrorResponse(message string) *Response {
	return &Response{Status: statusError, Message: message}
}

// NewAppErrorResponse renders err with its code. Internal errors keep a generic
// message so driver and SQL details stay in the logs.
func NewAppErrorResponse(err *apperrors.AppError) *Response {
	message := err.Message
	if err.Code == apperrors.ErrInternal {
		message = "internal server error"
	}
	return &Response{
		Status:  statusError,
		Code:    err.Code.String(),
		Message: message,
	}
}
