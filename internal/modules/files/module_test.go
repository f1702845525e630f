package files

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskfs/internal/core"
)

func TestModuleCommands(t *testing.T) {
	ctx := context.Background()
	r := core.NewRegistry()
	facade := NewFacade(afero.NewMemMapFs(), &fakeChooser{path: "/picked"})
	require.NoError(t, r.Register(ctx, NewModule(facade)))

	resp, err := r.Execute(ctx, CmdWriteFile, core.Args{"filePath": "/mail/out/1.json", "content": `{"ok":true}`})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Data)

	resp, err = r.Execute(ctx, CmdReadFile, core.Args{"file_path": "/mail/out/1.json"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Data)

	resp, err = r.Execute(ctx, CmdListFiles, core.Args{"dirPath": "/mail/out"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.json"}, resp.Data)

	resp, err = r.Execute(ctx, CmdSelectDirectory, nil)
	require.NoError(t, err)
	assert.Equal(t, "/picked", resp.Data)
}

func TestModuleFailureResponse(t *testing.T) {
	m := NewModule(NewFacade(afero.NewMemMapFs(), nil))
	resp, err := m.Execute(context.Background(), CmdReadFile, core.Args{"file_path": "/missing"})
	require.Error(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, string(core.KindNotFound), resp.ErrorCode)
	assert.NotEmpty(t, resp.Message)

	resp, _ = m.Execute(context.Background(), CmdSelectDirectory, nil)
	assert.Equal(t, string(core.KindNoSelection), resp.ErrorCode)
}

func TestModuleUnknownCommand(t *testing.T) {
	m := NewModule(NewFacade(afero.NewMemMapFs(), nil))
	_, err := m.Execute(context.Background(), "delete_file", nil)
	assert.Error(t, err)
}

func TestModuleListEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/box/ok.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/box/bad\xff.txt", []byte("b"), 0o644))
	m := NewModule(NewFacade(fs, nil))

	resp, err := m.Execute(context.Background(), CmdListEntries, core.Args{"dirPath": "/box"})
	require.NoError(t, err)
	assert.Equal(t, Listing{Names: []string{"ok.txt"}, Skipped: 1}, resp.Data)
}
