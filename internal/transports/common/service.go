package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"deskfs/internal/core"
	"deskfs/internal/storage"
)

var (
	errEmptyCommand = errors.New("empty command")
	errRateLimited  = errors.New("rate limit exceeded")
)

// Invocation один вызов команды от транспорта.
type Invocation struct {
	RequestID string
	SubjectID string
	Command   string
	Args      core.Args
}

// Service объединяет общий пайплайн command->authz->ratelimit->core->audit.
// Authorizer, RateLimiter и AuditSink необязательны.
type Service struct {
	Source      string
	Registry    *core.Registry
	Authorizer  core.Authorizer
	RateLimiter *RateLimiter
	AuditSink   AuditSink
	Logger      *slog.Logger
}

// Invoke выполняет команду и пишет результат в аудит.
func (s *Service) Invoke(ctx context.Context, inv Invocation) (core.Response, error) {
	if inv.RequestID == "" {
		inv.RequestID = NewRequestID()
	}
	if inv.Command == "" {
		return core.Response{Status: "error", ErrorCode: "bad_command", Message: errEmptyCommand.Error()}, errEmptyCommand
	}
	subject := core.Subject{Source: s.Source, ID: inv.SubjectID}
	if s.Authorizer != nil {
		if err := s.Authorizer.Authorize(subject, core.Action{Command: inv.Command}); err != nil {
			s.writeAudit(ctx, inv, storage.StatusDenied)
			return core.Response{Status: "error", ErrorCode: "access_denied", Message: "access denied"}, err
		}
	}
	if s.RateLimiter != nil {
		if !s.RateLimiter.Allow(fmt.Sprintf("%s:%s", s.Source, inv.SubjectID), time.Now()) {
			s.writeAudit(ctx, inv, storage.StatusRateLimited)
			return core.Response{Status: "error", ErrorCode: "rate_limited", Message: errRateLimited.Error()}, errRateLimited
		}
	}

	started := time.Now()
	resp, execErr := s.Registry.Execute(ctx, inv.Command, inv.Args)
	if core.IsUnknownCommand(execErr) {
		s.logger().WarnContext(ctx, "unknown command", "source", s.Source, "command", inv.Command, "request_id", inv.RequestID)
	}
	status := storage.StatusOK
	if execErr != nil || resp.Status == "error" {
		status = storage.StatusError
	}
	s.logger().DebugContext(ctx, "command executed",
		"source", s.Source,
		"command", inv.Command,
		"request_id", inv.RequestID,
		"status", status,
		"error_code", resp.ErrorCode,
		"duration", time.Since(started),
	)
	s.writeAudit(ctx, inv, status)
	return resp, execErr
}

func (s *Service) writeAudit(ctx context.Context, inv Invocation, status string) {
	if s.AuditSink == nil {
		return
	}
	err := s.AuditSink.Write(context.WithoutCancel(ctx), storage.AuditEvent{
		Subject:   inv.SubjectID,
		Action:    inv.Command,
		Source:    s.Source,
		Status:    status,
		RequestID: inv.RequestID,
		Payload:   buildAuditPayload(inv.Command, inv.Args),
	})
	if err != nil {
		s.logger().WarnContext(ctx, "audit write failed", "request_id", inv.RequestID, "err", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
