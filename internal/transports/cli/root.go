// Package cli предоставляет команды deskfs из терминала поверх cobra.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"deskfs/internal/app"
	"deskfs/internal/config"
	"deskfs/internal/core"
	"deskfs/internal/modules/files"
	"deskfs/internal/modules/license"
	"deskfs/internal/modules/system"
	"deskfs/internal/storage"
	"deskfs/internal/transports/common"
	"deskfs/pkg/logger"
)

// CommandError сообщает о неуспешном ответе команды.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// PrintError пишет ошибку в w одной строкой; код выделяется цветом.
func PrintError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		red.Fprint(w, "error ")
		color.New(color.FgYellow).Fprint(w, cmdErr.Code)
		if cmdErr.Message != "" {
			fmt.Fprintf(w, ": %s", cmdErr.Message)
		}
		fmt.Fprintln(w)
		return
	}
	red.Fprint(w, "error ")
	fmt.Fprintln(w, err)
}

type runner struct {
	version    string
	opts       app.Options
	configPath string
	app        *app.App
}

// New создает корневую CLI-команду. version печатает команда version;
// opts передаются в app.NewApp, пустой Logger заменяется логгером из конфигурации.
func New(version string, opts app.Options) *cobra.Command {
	r := &runner{version: version, opts: opts}

	root := &cobra.Command{
		Use:           "deskfs",
		Short:         "Файловые команды для desktop-оболочки",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&r.configPath, "config", "c", "", "путь к YAML-конфигу")

	root.AddCommand(
		r.newPickCmd(),
		r.newReadCmd(),
		r.newWriteCmd(),
		r.newListCmd(),
		r.newInvokeCmd("license", "Показать статус лицензии", license.CmdCheckLicense),
		r.newInvokeCmd("platform", "Показать сведения о платформе", system.CmdGetPlatform),
		newVersionCmd(version),
		r.newAuditCmd(),
		r.newServeCmd(),
	)
	return root
}

func (r *runner) open(cmd *cobra.Command) (*app.App, error) {
	if r.app != nil {
		return r.app, nil
	}
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	opts := r.opts
	if opts.Logger == nil {
		opts.Logger = logger.New(cfg.Agent.LogLevel, cmd.ErrOrStderr())
	}
	if opts.Stdin == nil {
		opts.Stdin = cmd.InOrStdin()
	}
	if opts.Stdout == nil {
		opts.Stdout = cmd.OutOrStdout()
	}
	a, err := app.NewApp(cmd.Context(), cfg, opts)
	if err != nil {
		return nil, err
	}
	r.app = a
	return a, nil
}

// withApp закрывает приложение после выполнения команды.
func (r *runner) withApp(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if cerr := r.close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}
}

func (r *runner) close() error {
	if r.app == nil {
		return nil
	}
	err := r.app.Close()
	r.app = nil
	return err
}

// call выполняет команду через общий пайплайн с источником cli.
func (r *runner) call(cmd *cobra.Command, command string, args core.Args) (core.Response, error) {
	a, err := r.open(cmd)
	if err != nil {
		return core.Response{}, err
	}
	resp, err := a.Service(app.SourceCLI).Invoke(cmd.Context(), common.Invocation{
		SubjectID: app.CurrentUser(),
		Command:   command,
		Args:      args,
	})
	if err != nil || resp.Status == "error" {
		return resp, &CommandError{Code: resp.ErrorCode, Message: resp.Message}
	}
	return resp, nil
}

// invoke выполняет команду и печатает данные ответа.
func (r *runner) invoke(cmd *cobra.Command, command string, args core.Args) (core.Response, error) {
	resp, err := r.call(cmd, command, args)
	if err != nil {
		return resp, err
	}
	return resp, writeJSON(cmd.OutOrStdout(), resp.Data)
}

func (r *runner) newInvokeCmd(use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, args []string) error {
			_, err := r.invoke(cmd, command, nil)
			return err
		}),
	}
}

func (r *runner) newPickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pick",
		Short: "Выбрать каталог",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, args []string) error {
			_, err := r.invoke(cmd, files.CmdSelectDirectory, nil)
			return err
		}),
	}
}

func (r *runner) newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <path>",
		Short: "Прочитать текстовый файл",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string) error {
			_, err := r.invoke(cmd, files.CmdReadFile, core.Args{"file_path": args[0]})
			return err
		}),
	}
}

func (r *runner) newWriteCmd() *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "write <path>",
		Short: "Записать файл, создав недостающие каталоги",
		Long:  "Записывает --content или, если флаг не задан, stdin целиком.",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("content") {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				content = string(data)
			}
			_, err := r.invoke(cmd, files.CmdWriteFile, core.Args{"file_path": args[0], "content": content})
			return err
		}),
	}
	cmd.Flags().StringVar(&content, "content", "", "содержимое файла")
	return cmd
}

func (r *runner) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <dir>",
		Short: "Показать записи каталога",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string) error {
			resp, err := r.call(cmd, files.CmdListEntries, core.Args{"dir_path": args[0]})
			if err != nil {
				return err
			}
			listing, _ := resp.Data.(files.Listing)
			if listing.Skipped > 0 {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(),
					"warning: %d entries skipped, names are not valid UTF-8\n", listing.Skipped)
			}
			return writeJSON(cmd.OutOrStdout(), listing.Names)
		}),
	}
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version)
		},
	}
}

func (r *runner) newAuditCmd() *cobra.Command {
	var (
		limit   int
		source  string
		subject string
		since   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Показать журнал вызовов",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd)
			if err != nil {
				return err
			}
			if a.Store == nil {
				return &CommandError{Code: "audit_disabled", Message: "audit is disabled in config"}
			}
			q := storage.AuditQuery{Source: source, Subject: subject, Limit: limit}
			if since > 0 {
				q.From = time.Now().Add(-since)
			}
			events, err := a.Store.QueryAudit(cmd.Context(), q)
			if err != nil {
				return err
			}
			type row struct {
				TS        string          `json:"ts"`
				Source    string          `json:"source"`
				Subject   string          `json:"subject"`
				Action    string          `json:"action"`
				Status    string          `json:"status"`
				RequestID string          `json:"request_id"`
				Payload   json.RawMessage `json:"payload,omitempty"`
			}
			rows := make([]row, 0, len(events))
			for _, ev := range events {
				rows = append(rows, row{
					TS:        ev.TS.Format(time.RFC3339),
					Source:    ev.Source,
					Subject:   ev.Subject,
					Action:    ev.Action,
					Status:    ev.Status,
					RequestID: ev.RequestID,
					Payload:   json.RawMessage(ev.Payload),
				})
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "максимум событий (до 200)")
	cmd.Flags().StringVar(&source, "source", "", "фильтр по источнику: cli, ipc, web")
	cmd.Flags().StringVar(&subject, "subject", "", "фильтр по субъекту")
	cmd.Flags().DurationVar(&since, "since", 0, "только события за последний период, например 24h")
	return cmd
}

func (r *runner) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Обслуживать оболочку по ipc и/или HTTP",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.Logger.Info("deskfs serving", "version", r.version, "transports", a.Transports.Names())
			return a.Serve(ctx)
		}),
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
