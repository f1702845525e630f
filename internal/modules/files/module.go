package files

import (
	"context"
	"fmt"

	"deskfs/internal/core"
)

// Команды файлового модуля.
const (
	CmdSelectDirectory = "select_directory"
	CmdReadFile        = "read_file"
	CmdWriteFile       = "write_file"
	CmdListFiles       = "list_files"
	CmdListEntries     = "list_entries"
)

// Module публикует Facade как набор команд реестра.
type Module struct {
	facade *Facade
}

// NewModule создает модуль поверх фасада.
func NewModule(facade *Facade) *Module {
	return &Module{facade: facade}
}

func (m *Module) Name() string { return "files" }

func (m *Module) Commands() []string {
	return []string{CmdSelectDirectory, CmdReadFile, CmdWriteFile, CmdListFiles, CmdListEntries}
}

func (m *Module) Init(ctx context.Context) error {
	if m.facade == nil {
		return fmt.Errorf("files module: facade is nil")
	}
	return nil
}

func (m *Module) Execute(ctx context.Context, cmd string, args core.Args) (core.Response, error) {
	switch cmd {
	case CmdSelectDirectory:
		path, err := m.facade.SelectDirectory(ctx)
		return respond(path, err)
	case CmdReadFile:
		content, err := m.facade.ReadFile(args.Get("file_path"))
		return respond(content, err)
	case CmdWriteFile:
		err := m.facade.WriteFile(args.Get("file_path"), args.Get("content"))
		return respond(nil, err)
	case CmdListFiles:
		names, err := m.facade.ListFiles(args.Get("dir_path"))
		return respond(names, err)
	case CmdListEntries:
		listing, err := m.facade.ListEntries(args.Get("dir_path"))
		return respond(listing, err)
	default:
		return core.Response{Status: "error", ErrorCode: "unknown_command"}, fmt.Errorf("command %s not supported", cmd)
	}
}

func respond(data interface{}, err error) (core.Response, error) {
	if err != nil {
		return core.Failed(err), err
	}
	return core.OK(data), nil
}
