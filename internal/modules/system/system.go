package system

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"

	"deskfs/internal/core"
)

// Команды системного модуля.
const (
	CmdGetPlatform   = "get_platform"
	CmdGetAppVersion = "get_app_version"
)

// PlatformInfo описывает платформу, на которой запущена оболочка.
type PlatformInfo struct {
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelArch      string `json:"kernel_arch"`
	Hostname        string `json:"hostname"`
}

// InfoFunc источник сведений о хосте; подменяется в тестах.
type InfoFunc func(ctx context.Context) (*host.InfoStat, error)

// Module отдает сведения о платформе и версии приложения.
type Module struct {
	Version string
	Info    InfoFunc
}

// NewModule создает модуль с данными из gopsutil.
func NewModule(version string) *Module {
	return &Module{Version: version, Info: host.InfoWithContext}
}

func (m *Module) Name() string { return "system" }

func (m *Module) Commands() []string { return []string{CmdGetPlatform, CmdGetAppVersion} }

func (m *Module) Init(ctx context.Context) error {
	if m.Info == nil {
		m.Info = host.InfoWithContext
	}
	if m.Version == "" {
		m.Version = "dev"
	}
	return nil
}

func (m *Module) Execute(ctx context.Context, cmd string, args core.Args) (core.Response, error) {
	switch cmd {
	case CmdGetPlatform:
		return m.platform(ctx)
	case CmdGetAppVersion:
		return core.OK(m.Version), nil
	default:
		return core.Response{Status: "error", ErrorCode: "unknown_command"}, fmt.Errorf("command %s not supported", cmd)
	}
}

func (m *Module) platform(ctx context.Context) (core.Response, error) {
	info, err := m.Info(ctx)
	if err != nil {
		failure := core.Fail(core.KindOther, "host info", "", err)
		return core.Failed(failure), failure
	}
	goos := info.OS
	if goos == "" {
		goos = runtime.GOOS
	}
	return core.OK(PlatformInfo{
		OS:              goos,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelArch:      info.KernelArch,
		Hostname:        info.Hostname,
	}), nil
}
