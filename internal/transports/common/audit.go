package common

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"deskfs/internal/core"
	"deskfs/internal/storage"
)

// AuditSink записывает аудиторные события.
type AuditSink interface {
	Write(ctx context.Context, ev storage.AuditEvent) error
}

// Аргументы, значения которых попадают в аудит. Содержимое файлов не пишется.
var auditedArgs = map[string]struct{}{
	"file_path": {}, "filePath": {},
	"dir_path": {}, "dirPath": {},
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID возвращает сортируемый по времени идентификатор запроса.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func buildAuditPayload(command string, args core.Args) []byte {
	names := args.Names()
	sort.Strings(names)
	paths := make(map[string]string)
	for _, name := range names {
		if _, ok := auditedArgs[name]; ok {
			paths[name] = args[name]
		}
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"command": command,
		"args":    names,
		"paths":   paths,
	})
	return payload
}
