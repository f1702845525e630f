package core

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrorKind классифицирует отказ операции для вызывающей стороны.
type ErrorKind string

const (
	KindNoSelection      ErrorKind = "no_selection"
	KindNotFound         ErrorKind = "not_found"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindEncoding         ErrorKind = "encoding"
	KindInvalidArgument  ErrorKind = "invalid_argument"
	KindOther            ErrorKind = "other"
)

// Sentinel-ошибки для errors.Is по виду отказа.
var (
	ErrNoSelection      = errors.New("no directory selected")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrEncoding         = errors.New("invalid utf-8 content")
	ErrInvalidArgument  = errors.New("invalid argument")
)

var kindSentinels = map[ErrorKind]error{
	KindNoSelection:      ErrNoSelection,
	KindNotFound:         ErrNotFound,
	KindPermissionDenied: ErrPermissionDenied,
	KindEncoding:         ErrEncoding,
	KindInvalidArgument:  ErrInvalidArgument,
}

// OperationFailure единый тип ошибки команды: вид отказа плюс
// человекочитаемое сообщение для отображения.
type OperationFailure struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *OperationFailure) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Kind)
}

func (e *OperationFailure) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать с sentinel-ошибками по виду отказа.
func (e *OperationFailure) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Fail создает OperationFailure заданного вида.
func Fail(kind ErrorKind, op, path string, err error) *OperationFailure {
	return &OperationFailure{Kind: kind, Op: op, Path: path, Err: err}
}

// FromIO классифицирует ошибку файловой системы.
func FromIO(op, path string, err error) *OperationFailure {
	kind := KindOther
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	}
	return Fail(kind, op, path, err)
}

// KindOf извлекает вид отказа; ошибки не из этого пакета считаются KindOther.
func KindOf(err error) ErrorKind {
	var failure *OperationFailure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return KindOther
}
