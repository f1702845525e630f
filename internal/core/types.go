package core

import (
	"context"
	"strings"
)

// Args содержит именованные аргументы команды.
type Args map[string]string

// Get возвращает аргумент по имени. Имя в snake_case также ищется
// в camelCase-форме, которую присылает webview (file_path -> filePath).
func (a Args) Get(name string) string {
	if v, ok := a[name]; ok {
		return v
	}
	return a[camelCase(name)]
}

// Names возвращает имена переданных аргументов.
func (a Args) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	return names
}

func camelCase(name string) string {
	parts := strings.Split(name, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

// Response описывает унифицированный результат выполнения команды.
type Response struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// OK формирует успешный ответ.
func OK(data interface{}) Response {
	return Response{Status: "ok", Data: data}
}

// Failed формирует ответ с ошибкой; код берется из OperationFailure, если он есть.
func Failed(err error) Response {
	return Response{Status: "error", ErrorCode: string(KindOf(err)), Message: err.Error()}
}

// CommandProvider определяет контракт для модулей.
type CommandProvider interface {
	Name() string
	Commands() []string
	Init(ctx context.Context) error
	Execute(ctx context.Context, cmd string, args Args) (Response, error)
}
