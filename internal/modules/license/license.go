package license

import (
	"context"
	"fmt"

	"deskfs/internal/core"
)

// CmdCheckLicense возвращает статус лицензии.
const CmdCheckLicense = "check_license"

// TrialDays длительность пробного периода, которую сообщает заглушка.
const TrialDays = 90

// Status описывает состояние лицензии.
type Status struct {
	Valid         bool `json:"valid"`
	DaysRemaining int  `json:"daysRemaining"`
}

// Module заглушка проверки лицензии: всегда действительна, 90 дней.
// Состояния нет, результат не зависит от истории вызовов.
type Module struct{}

func (m *Module) Name() string { return "license" }

func (m *Module) Commands() []string { return []string{CmdCheckLicense} }

func (m *Module) Init(ctx context.Context) error { //nolint:revive // проверять нечего
	return nil
}

// Check возвращает фиксированный статус.
func (m *Module) Check() Status {
	return Status{Valid: true, DaysRemaining: TrialDays}
}

func (m *Module) Execute(ctx context.Context, cmd string, args core.Args) (core.Response, error) {
	switch cmd {
	case CmdCheckLicense:
		return core.OK(m.Check()), nil
	default:
		return core.Response{Status: "error", ErrorCode: "unknown_command"}, fmt.Errorf("command %s not supported", cmd)
	}
}
