package storage

import (
	"context"
	"time"
)

// Статусы аудиторных событий.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusDenied      = "denied"
	StatusRateLimited = "rate_limited"
)

// AuditEvent фиксирует вызов команды через транспорт.
type AuditEvent struct {
	Subject   string
	Action    string
	Source    string
	Status    string
	RequestID string
	Payload   []byte
	TS        time.Time
}

// AuditQuery задает фильтры выборки аудита. Пустые поля не фильтруют.
type AuditQuery struct {
	From    time.Time
	To      time.Time
	Subject string
	Source  string
	Limit   int
}

// AuditWriter принимает события аудита; Store подходит как common.AuditSink.
type AuditWriter interface {
	Write(ctx context.Context, ev AuditEvent) error
}

// Store описывает операции хранилища аудита.
type Store interface {
	AuditWriter
	QueryAudit(ctx context.Context, q AuditQuery) ([]AuditEvent, error)
	PruneAudit(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
