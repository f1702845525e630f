// Package files реализует фасад доступа к файловой системе для команд
// desktop-оболочки: выбор каталога, чтение, запись и листинг.
package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/afero"

	"deskfs/internal/core"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// DirectoryChooser предоставляет интерактивный выбор каталога.
// При отмене пользователем реализация возвращает core.ErrNoSelection.
type DirectoryChooser interface {
	ChooseDirectory(ctx context.Context) (string, error)
}

// Listing содержит имена записей каталога и число пропущенных записей,
// чьи имена не являются корректным UTF-8.
type Listing struct {
	Names   []string `json:"names"`
	Skipped int      `json:"skipped"`
}

// Facade транслирует команды в вызовы файловой системы. Состояния между
// вызовами нет, поэтому методы безопасны для конкурентного использования.
type Facade struct {
	fs      afero.Fs
	chooser DirectoryChooser
}

// NewFacade создает фасад поверх fs; nil fs означает файловую систему ОС.
func NewFacade(fs afero.Fs, chooser DirectoryChooser) *Facade {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Facade{fs: fs, chooser: chooser}
}

// SelectDirectory блокирует вызывающую задачу до ответа пользователя и
// возвращает абсолютный путь выбранного каталога.
func (f *Facade) SelectDirectory(ctx context.Context) (string, error) {
	const op = "select directory"
	if f.chooser == nil {
		return "", core.Fail(core.KindNoSelection, op, "", errors.New("directory chooser is not available"))
	}
	path, err := f.chooser.ChooseDirectory(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNoSelection) {
			return "", core.Fail(core.KindNoSelection, op, "", err)
		}
		return "", core.Fail(core.KindOther, op, "", err)
	}
	if path == "" {
		return "", core.Fail(core.KindNoSelection, op, "", core.ErrNoSelection)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", core.Fail(core.KindOther, op, path, err)
	}
	return abs, nil
}

// ReadFile возвращает содержимое файла целиком. Размер не ограничивается.
func (f *Facade) ReadFile(path string) (string, error) {
	const op = "read file"
	if path == "" {
		return "", core.Fail(core.KindInvalidArgument, op, "", errors.New("file path is empty"))
	}
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return "", core.FromIO(op, path, err)
	}
	if !utf8.Valid(data) {
		return "", core.Fail(core.KindEncoding, op, path, core.ErrEncoding)
	}
	return string(data), nil
}

// WriteFile создает недостающие родительские каталоги и перезаписывает файл.
// Запись не атомарна.
func (f *Facade) WriteFile(path, content string) error {
	if path == "" {
		return core.Fail(core.KindInvalidArgument, "write file", "", errors.New("file path is empty"))
	}
	if parent := filepath.Dir(path); parent != "" {
		if err := f.fs.MkdirAll(parent, dirPerm); err != nil {
			return core.FromIO("create directory", parent, err)
		}
	}
	if err := afero.WriteFile(f.fs, path, []byte(content), filePerm); err != nil {
		return core.FromIO("write file", path, err)
	}
	return nil
}

// ListFiles возвращает имена непосредственных потомков каталога в порядке,
// который отдает файловая система.
func (f *Facade) ListFiles(dir string) ([]string, error) {
	listing, err := f.ListEntries(dir)
	if err != nil {
		return nil, err
	}
	return listing.Names, nil
}

// ListEntries работает как ListFiles, но также сообщает, сколько записей
// было пропущено из-за имени, не являющегося текстом.
func (f *Facade) ListEntries(dir string) (Listing, error) {
	const op = "list directory"
	if dir == "" {
		return Listing{}, core.Fail(core.KindInvalidArgument, op, "", errors.New("directory path is empty"))
	}
	d, err := f.fs.Open(dir)
	if err != nil {
		return Listing{}, core.FromIO(op, dir, err)
	}
	defer d.Close()

	raw, err := d.Readdirnames(-1)
	if err != nil {
		return Listing{}, core.FromIO(op, dir, err)
	}
	listing := Listing{Names: make([]string, 0, len(raw))}
	for _, name := range raw {
		if name == "." || name == ".." {
			continue
		}
		if !utf8.ValidString(name) {
			listing.Skipped++
			continue
		}
		listing.Names = append(listing.Names, name)
	}
	return listing, nil
}
