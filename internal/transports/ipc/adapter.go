// Package ipc обслуживает команды по построчному JSON через stdin/stdout,
// как это делает sidecar-процесс desktop-оболочки.
package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"deskfs/internal/core"
	"deskfs/internal/transports/common"
)

// MaxLineBytes предельный размер одного запроса.
const MaxLineBytes = 64 << 20

type request struct {
	ID   string    `json:"id"`
	Cmd  string    `json:"cmd"`
	Args core.Args `json:"args"`
}

type response struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// Adapter читает запросы из in и пишет ответы в out. Каждый запрос
// исполняется в своей горутине; ответы приходят в порядке завершения
// и сопоставляются по id.
type Adapter struct {
	svc     *common.Service
	subject string
	in      io.Reader
	logger  *slog.Logger

	outMu sync.Mutex
	enc   *json.Encoder

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan error
	finished chan struct{}
}

// NewAdapter создает ipc transport.
func NewAdapter(svc *common.Service, subject string, in io.Reader, out io.Writer, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		svc:     svc,
		subject: subject,
		in:      in,
		logger:  logger,
		enc:     json.NewEncoder(out),
	}
}

func (a *Adapter) Name() string { return "ipc" }

// Start запускает чтение запросов в фоне.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil {
		return errors.New("ipc transport already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.done = make(chan error, 1)
	a.finished = make(chan struct{})
	go func(done chan<- error, finished chan struct{}) {
		err := a.Serve(runCtx)
		close(finished)
		done <- err
	}(a.done, a.finished)
	return nil
}

// Done закрывается, когда входной поток исчерпан или обработка остановлена.
// До Start возвращает nil.
func (a *Adapter) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished
}

// Stop отменяет обработку и ждет завершения запросов в полете.
// Входной поток закрывается, если он реализует io.Closer.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	if c, ok := a.in.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Debug("ipc input close failed", "err", err)
		}
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve обрабатывает запросы до EOF или отмены ctx и ждет завершения
// запущенных команд.
func (a *Adapter) Serve(ctx context.Context) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- a.scan(ctx, lines)
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			req, err := decodeRequest(line)
			if err != nil {
				a.write(response{ID: req.ID, Status: "error", ErrorCode: errorCode(err), Message: err.Error()})
				continue
			}
			if req.ID == "" {
				req.ID = common.NewRequestID()
			}
			wg.Add(1)
			go func(req request) {
				defer wg.Done()
				a.handle(ctx, req)
			}(req)
		}
	}
}

// scan читает непустые строки из in и закрывает lines по EOF.
func (a *Adapter) scan(ctx context.Context, lines chan<- []byte) error {
	defer close(lines)
	sc := bufio.NewScanner(a.in)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case lines <- append([]byte(nil), line...):
		case <-ctx.Done():
			return nil
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// decodeRequest разбирает строку запроса. При ошибке id все равно
// извлекается, если он есть, чтобы ответ можно было сопоставить с вызовом.
func decodeRequest(line []byte) (request, error) {
	var req request
	err := json.Unmarshal(line, &req)
	if err == nil {
		return req, nil
	}
	var head struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(line, &head) == nil {
		return request{ID: head.ID}, err
	}
	return request{}, err
}

func errorCode(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return string(core.KindInvalidArgument)
	}
	return "invalid_json"
}

func (a *Adapter) handle(ctx context.Context, req request) {
	resp, _ := a.svc.Invoke(ctx, common.Invocation{
		RequestID: req.ID,
		SubjectID: a.subject,
		Command:   req.Cmd,
		Args:      req.Args,
	})
	a.write(response{
		ID:        req.ID,
		Status:    resp.Status,
		Data:      resp.Data,
		ErrorCode: resp.ErrorCode,
		Message:   resp.Message,
	})
}

func (a *Adapter) write(resp response) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if err := a.enc.Encode(resp); err != nil {
		a.logger.Error("ipc write failed", "request_id", resp.ID, "err", err)
	}
}
