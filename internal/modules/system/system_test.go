package system

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskfs/internal/core"
)

func TestGetPlatform(t *testing.T) {
	m := &Module{Version: "1.2.0", Info: func(ctx context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{OS: "linux", Platform: "fedora", PlatformVersion: "40", KernelArch: "x86_64", Hostname: "desk"}, nil
	}}
	require.NoError(t, m.Init(context.Background()))

	resp, err := m.Execute(context.Background(), CmdGetPlatform, nil)
	require.NoError(t, err)
	assert.Equal(t, PlatformInfo{OS: "linux", Platform: "fedora", PlatformVersion: "40", KernelArch: "x86_64", Hostname: "desk"}, resp.Data)
}

func TestGetPlatformFailure(t *testing.T) {
	m := &Module{Info: func(ctx context.Context) (*host.InfoStat, error) {
		return nil, errors.New("no /proc")
	}}
	resp, err := m.Execute(context.Background(), CmdGetPlatform, nil)
	require.Error(t, err)
	assert.Equal(t, string(core.KindOther), resp.ErrorCode)
}

func TestGetAppVersionDefaults(t *testing.T) {
	m := &Module{}
	require.NoError(t, m.Init(context.Background()))
	resp, err := m.Execute(context.Background(), CmdGetAppVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, "dev", resp.Data)
}

func TestUnknownCommand(t *testing.T) {
	m := NewModule("v")
	_, err := m.Execute(context.Background(), "reboot", nil)
	assert.Error(t, err)
}
