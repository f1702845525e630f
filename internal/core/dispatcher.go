package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	errProviderExists   = errors.New("provider already registered")
	errCommandExists    = errors.New("command already registered")
	errUnknownCommand   = errors.New("unknown command")
	errInvalidArguments = errors.New("invalid arguments")
)

// Registry хранит зарегистрированные модули и маршрутизирует команды.
// Регистрация выполняется до начала обслуживания запросов.
type Registry struct {
	providers map[string]CommandProvider
	commands  map[string]CommandProvider
}

// NewRegistry создает пустой реестр модулей.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]CommandProvider),
		commands:  make(map[string]CommandProvider),
	}
}

// Register добавляет модуль; имя модуля и имена его команд должны быть уникальны.
func (r *Registry) Register(ctx context.Context, provider CommandProvider) error {
	if provider == nil {
		return fmt.Errorf("provider is nil: %w", errInvalidArguments)
	}
	name := provider.Name()
	if name == "" {
		return fmt.Errorf("provider name is empty: %w", errInvalidArguments)
	}
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%s: %w", name, errProviderExists)
	}
	cmds := provider.Commands()
	if len(cmds) == 0 {
		return fmt.Errorf("provider %s has no commands: %w", name, errInvalidArguments)
	}
	seen := make(map[string]struct{}, len(cmds))
	for _, cmd := range cmds {
		if cmd == "" {
			return fmt.Errorf("provider %s: empty command name: %w", name, errInvalidArguments)
		}
		if _, dup := seen[cmd]; dup {
			return fmt.Errorf("%s/%s: %w", name, cmd, errCommandExists)
		}
		if owner, exists := r.commands[cmd]; exists {
			return fmt.Errorf("%s (owned by %s): %w", cmd, owner.Name(), errCommandExists)
		}
		seen[cmd] = struct{}{}
	}
	if err := provider.Init(ctx); err != nil {
		return fmt.Errorf("init %s: %w", name, err)
	}
	r.providers[name] = provider
	for _, cmd := range cmds {
		r.commands[cmd] = provider
	}
	return nil
}

// Execute вызывает модуль, которому принадлежит команда.
func (r *Registry) Execute(ctx context.Context, cmd string, args Args) (Response, error) {
	prov, ok := r.commands[cmd]
	if !ok {
		return Response{Status: "error", ErrorCode: "unknown_command", Message: fmt.Sprintf("command %q is not supported", cmd)},
			fmt.Errorf("%s: %w", cmd, errUnknownCommand)
	}
	if args == nil {
		args = Args{}
	}
	return prov.Execute(ctx, cmd, args)
}

// Providers возвращает отсортированный список модулей.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Commands возвращает отсортированный список команд.
func (r *Registry) Commands() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsUnknownCommand сообщает, что команда не зарегистрирована.
func IsUnknownCommand(err error) bool {
	return errors.Is(err, errUnknownCommand)
}
