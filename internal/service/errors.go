package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Kind классифицирует ошибки бизнес-логики.
type Kind int

const (
	KindInternal Kind = iota
	// KindNotFound: сущность не найдена.
	KindNotFound
	// KindInvalidOperation: действие неприменимо к типу кампании.
	KindInvalidOperation
	// KindRejected: нарушено бизнес-правило.
	KindRejected
	// KindUnauthorized: у пользователя нет прав на действие.
	KindUnauthorized
	// KindConflict: проиграна гонка с параллельным изменением.
	KindConflict
	// KindUpstream: хранилище или внешний сервис недоступны.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindRejected:
		return "rejected"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// Error описывает ошибку бизнес-логики с классом и сообщением для клиента.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Expected сообщает, что ошибка является ожидаемым исходом, а не сбоем.
func (e *Error) Expected() bool {
	switch e.Kind {
	case KindNotFound, KindInvalidOperation, KindRejected, KindUnauthorized:
		return true
	default:
		return false
	}
}

// KindOf возвращает класс ошибки; для прочих ошибок возвращает KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func notFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func invalidOperation(msg string) error {
	return &Error{Kind: KindInvalidOperation, Message: msg}
}

func rejected(msg string) error {
	return &Error{Kind: KindRejected, Message: msg}
}

func rejectedWith(msg string, err error) error {
	return &Error{Kind: KindRejected, Message: msg, Err: err}
}

func unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func conflict(msg string, err error) error {
	return &Error{Kind: KindConflict, Message: msg, Err: err}
}

func upstream(msg string, err error) error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// storeFailure логирует сбой хранилища и скрывает детали от клиента.
func (s *Service) storeFailure(op string, err error) error {
	s.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return upstream("storage is temporarily unavailable", fmt.Errorf("%s: %w", op, err))
}

func (s *Service) raced(msg string, err error) error {
	s.logger.Warn("concurrent modification", zap.String("reason", msg), zap.Error(err))
	return conflict(msg, err)
}
