// Package apperr типизированные ошибки бизнес-логики.
// Сервисы возвращают *Error, транспорт сам решает, какой статус отдать.
package apperr

import (
	"errors"
	"fmt"
)

// Kind категория ошибки
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindInvalidRequest
	KindNotFound
	KindConflict
	KindInsufficientStock
	KindInsufficientBalance
)

var kindNames = map[Kind]string{
	KindInternal:            "internal",
	KindUnauthenticated:     "unauthenticated",
	KindForbidden:           "forbidden",
	KindInvalidRequest:      "invalid_request",
	KindNotFound:            "not_found",
	KindConflict:            "conflict",
	KindInsufficientStock:   "insufficient_stock",
	KindInsufficientBalance: "insufficient_balance",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error ошибка с категорией, сообщением и необязательными деталями
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает только Kind, чтобы работал errors.Is(err, apperr.NotFound(""))
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error       { return New(KindForbidden, msg) }
func InvalidRequest(msg string, details ...string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg, Details: details}
}
func NotFound(msg string) *Error            { return New(KindNotFound, msg) }
func Conflict(msg string) *Error            { return New(KindConflict, msg) }
func InsufficientStock(msg string) *Error   { return New(KindInsufficientStock, msg) }
func InsufficientBalance(msg string) *Error { return New(KindInsufficientBalance, msg) }

// Wrap помечает неожиданную ошибку хранилища как внутреннюю
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf возвращает категорию; нетипизированные ошибки считаются внутренними
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind true, если err относится к kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
