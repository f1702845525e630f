package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"time"

	"github.com/spf13/afero"

	"deskfs/internal/config"
	"deskfs/internal/core"
	"deskfs/internal/modules/files"
	"deskfs/internal/modules/license"
	"deskfs/internal/modules/system"
	"deskfs/internal/picker"
	"deskfs/internal/storage"
	"deskfs/internal/storage/sqlite"
	"deskfs/internal/transports/common"
	"deskfs/internal/transports/ipc"
	"deskfs/internal/transports/web"
)

// Источники вызовов команд.
const (
	SourceCLI = "cli"
	SourceIPC = "ipc"
	SourceWeb = "web"
)

// Options задает окружение процесса. Пустые поля заменяются значениями ОС.
type Options struct {
	Version string
	Logger  *slog.Logger
	// Fs файловая система фасада; nil означает файловую систему ОС.
	Fs afero.Fs
	// Chooser подменяет picker из конфигурации.
	Chooser files.DirectoryChooser
	Stdin   io.Reader
	Stdout  io.Writer
}

// App агрегирует зависимости ядра.
type App struct {
	Registry   *core.Registry
	Files      *files.Facade
	Transports *core.TransportManager
	Store      storage.Store
	Config     config.Config
	Logger     *slog.Logger

	limiter *common.RateLimiter
	ipc     *ipc.Adapter
	closers []io.Closer
}

// NewApp строит приложение: реестр модулей, хранилище аудита и транспорты.
func NewApp(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	a := &App{
		Transports: core.NewTransportManager(),
		Config:     cfg,
		Logger:     opts.Logger,
	}
	chooser := opts.Chooser
	if chooser == nil {
		chooser = a.newChooser(cfg)
	}

	a.Files = files.NewFacade(opts.Fs, chooser)
	r := core.NewRegistry()
	providers := []core.CommandProvider{
		files.NewModule(a.Files),
		&license.Module{},
		system.NewModule(opts.Version),
	}
	for _, p := range providers {
		if err := r.Register(ctx, p); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("register %s module: %w", p.Name(), err)
		}
	}
	a.Registry = r

	if cfg.Audit.Enabled {
		st, err := sqlite.Open(cfg.Audit.Path)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.Store = st
		a.closers = append(a.closers, st)
	}
	if cfg.Security.RatePerSecond > 0 {
		a.limiter = common.NewRateLimiter(cfg.Security.RatePerSecond, cfg.Security.RateBurst)
	}

	if cfg.IPC.Enabled {
		a.ipc = ipc.NewAdapter(a.Service(SourceIPC), CurrentUser(), opts.Stdin, opts.Stdout, opts.Logger)
		if err := a.Transports.Register(a.ipc); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("register ipc transport: %w", err)
		}
	}
	if cfg.Web.Enabled {
		tokens := make([]web.TokenEntry, 0, len(cfg.Web.Tokens))
		for _, token := range cfg.Web.Tokens {
			tokens = append(tokens, web.TokenEntry{
				ID:          token.ID,
				TokenSHA256: token.TokenSHA256,
				Subject:     token.Subject,
				Enabled:     token.Enabled,
			})
		}
		webAdapter := web.NewAdapter(a.Service(SourceWeb), r, a.Store, web.Config{
			ListenAddr:      cfg.Web.ListenAddr,
			ReadTimeout:     time.Duration(cfg.Web.ReadTimeoutMS) * time.Millisecond,
			WriteTimeout:    time.Duration(cfg.Web.WriteTimeoutMS) * time.Millisecond,
			RequestTimeout:  time.Duration(cfg.Web.RequestTimeoutMS) * time.Millisecond,
			ShutdownTimeout: time.Duration(cfg.Web.ShutdownTimeoutS) * time.Second,
			MaxRequestBody:  cfg.Web.MaxBodyBytes,
			Tokens:          tokens,
			AllowedOrigins:  cfg.Web.AllowedOrigins,
		}, opts.Logger)
		if err := a.Transports.Register(webAdapter); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("register web transport: %w", err)
		}
	}
	return a, nil
}

// Service возвращает пайплайн вызова команд для источника. Allowlist
// применяется только к web: cli и ipc работают от имени локального пользователя.
func (a *App) Service(source string) *common.Service {
	svc := &common.Service{
		Source:   source,
		Registry: a.Registry,
		Logger:   a.Logger,
	}
	if a.Store != nil {
		svc.AuditSink = a.Store
	}
	if source != SourceCLI && a.limiter != nil {
		svc.RateLimiter = a.limiter
	}
	if source == SourceWeb {
		svc.Authorizer = core.NewAllowlistAuthorizer(a.Config.Security.AuthAllowlist)
	}
	return svc
}

// Close высвобождает ресурсы приложения.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve запускает транспорты и очистку аудита до отмены контекста
// или закрытия ipc-потока.
func (a *App) Serve(ctx context.Context) error {
	if len(a.Transports.Names()) == 0 {
		return errors.New("no transports enabled")
	}
	if err := a.Transports.StartAll(ctx); err != nil {
		return fmt.Errorf("start transports: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Transports.StopAll(stopCtx); err != nil {
			a.Logger.Warn("stop transports", "err", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := core.NewScheduler(time.Duration(a.Config.Scheduler.IntervalSeconds)*time.Second, a.Logger)
	if a.Store != nil && a.Config.Audit.RetentionDays > 0 {
		sched.Add("audit_prune", a.pruneAudit)
	}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Start(runCtx)
	}()

	var ipcDone <-chan struct{}
	if a.ipc != nil {
		ipcDone = a.ipc.Done()
	}
	select {
	case <-ctx.Done():
	case <-ipcDone:
		a.Logger.Info("ipc input closed, shutting down")
	}
	cancel()
	<-schedDone
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) pruneAudit(ctx context.Context) error {
	before := time.Now().AddDate(0, 0, -a.Config.Audit.RetentionDays)
	n, err := a.Store.PruneAudit(ctx, before)
	if err != nil {
		return fmt.Errorf("prune audit: %w", err)
	}
	if n > 0 {
		a.Logger.Info("audit pruned", "deleted", n, "before", before.Format(time.RFC3339))
	}
	return nil
}

func (a *App) newChooser(cfg config.Config) files.DirectoryChooser {
	switch cfg.Picker.Mode {
	case config.PickerFixed:
		return picker.Fixed{Dir: cfg.Picker.DefaultDir}
	case config.PickerDisabled:
		return picker.Disabled{}
	}
	// stdin может быть занят ipc, поэтому prompt идет через управляющий терминал.
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		a.Logger.Warn("terminal picker unavailable, directory selection disabled", "err", err)
		return picker.Disabled{}
	}
	a.closers = append(a.closers, tty)
	return picker.NewTerminal(cfg.Picker.DefaultDir, tty, tty, tty)
}

// CurrentUser возвращает имя пользователя ОС, от имени которого работают cli и ipc.
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}
