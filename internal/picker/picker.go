// Package picker содержит реализации выбора каталога для files.Facade.
package picker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"deskfs/internal/core"
)

// Fixed всегда возвращает заранее настроенный каталог.
type Fixed struct {
	Dir string
}

func (f Fixed) ChooseDirectory(ctx context.Context) (string, error) {
	if f.Dir == "" {
		return "", core.ErrNoSelection
	}
	return f.Dir, nil
}

// Disabled используется, когда интерактивный выбор невозможен.
type Disabled struct{}

func (Disabled) ChooseDirectory(ctx context.Context) (string, error) {
	return "", core.ErrNoSelection
}

// Terminal спрашивает каталог в терминале с автодополнением путей.
// Вызовы сериализуются: терминал один, остальные команды при этом не ждут.
type Terminal struct {
	Message string
	Default string

	opts []survey.AskOpt
	mu   sync.Mutex
}

// NewTerminal создает picker поверх указанных потоков терминала.
func NewTerminal(defaultDir string, in terminal.FileReader, out terminal.FileWriter, errOut io.Writer) *Terminal {
	return &Terminal{
		Message: "Select a directory",
		Default: defaultDir,
		opts:    []survey.AskOpt{survey.WithStdio(in, out, errOut)},
	}
}

func (t *Terminal) ChooseDirectory(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var answer string
	prompt := &survey.Input{
		Message: t.Message,
		Default: t.Default,
		Help:    "Leave empty or press Ctrl+C to cancel",
		Suggest: suggestDirs,
	}
	opts := append([]survey.AskOpt{survey.WithValidator(validateDir)}, t.opts...)
	if err := survey.AskOne(prompt, &answer, opts...); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return "", fmt.Errorf("prompt interrupted: %w", core.ErrNoSelection)
		}
		return "", fmt.Errorf("directory prompt: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", core.ErrNoSelection
	}
	return expandHome(answer), nil
}

func validateDir(ans interface{}) error {
	s, ok := ans.(string)
	if !ok {
		return errors.New("unexpected answer type")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	info, err := os.Stat(expandHome(s))
	if err != nil {
		return fmt.Errorf("cannot use %s: %w", s, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s)
	}
	return nil
}

func suggestDirs(toComplete string) []string {
	matches, _ := filepath.Glob(expandHome(toComplete) + "*")
	dirs := make([]string, 0, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			dirs = append(dirs, m+string(filepath.Separator))
		}
	}
	return dirs
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
