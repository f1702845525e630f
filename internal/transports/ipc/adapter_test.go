package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskfs/internal/core"
	"deskfs/internal/modules/files"
	"deskfs/internal/modules/license"
	"deskfs/internal/transports/common"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestService(t *testing.T, fs afero.Fs) *common.Service {
	t.Helper()
	ctx := context.Background()
	r := core.NewRegistry()
	require.NoError(t, r.Register(ctx, files.NewModule(files.NewFacade(fs, nil))))
	require.NoError(t, r.Register(ctx, &license.Module{}))
	return &common.Service{Source: "ipc", Registry: r}
}

func decodeResponses(t *testing.T, out string) map[string]response {
	t.Helper()
	got := make(map[string]response)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var resp response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
		got[resp.ID] = resp
	}
	return got
}

func TestServeAnswersEveryRequest(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mail/in.txt", []byte("bonjour"), 0o644))

	in := strings.Join([]string{
		`{"id":"1","cmd":"read_file","args":{"filePath":"/mail/in.txt"}}`,
		`{"id":"2","cmd":"check_license"}`,
		``,
		`{"id":"3","cmd":"read_file","args":{"filePath":"/missing.txt"}}`,
		`{"id":"4","cmd":"write_file","args":{"filePath":"/out/new.txt","content":"line one\nline two"}}`,
		`{"id":"5","cmd":"nope"}`,
	}, "\n")
	var out syncBuffer
	a := NewAdapter(newTestService(t, fs), "shell", strings.NewReader(in), &out, nil)
	require.NoError(t, a.Serve(context.Background()))

	got := decodeResponses(t, out.String())
	require.Len(t, got, 5)
	assert.Equal(t, "bonjour", got["1"].Data)
	assert.Equal(t, map[string]interface{}{"valid": true, "daysRemaining": float64(90)}, got["2"].Data)
	assert.Equal(t, "error", got["3"].Status)
	assert.Equal(t, "not_found", got["3"].ErrorCode)
	assert.Equal(t, "ok", got["4"].Status)
	assert.Equal(t, "unknown_command", got["5"].ErrorCode)

	content, err := afero.ReadFile(fs, "/out/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(content))
}

func TestServeRejectsMalformedLine(t *testing.T) {
	var out syncBuffer
	a := NewAdapter(newTestService(t, afero.NewMemMapFs()), "shell", strings.NewReader("{not json}\n"), &out, nil)
	require.NoError(t, a.Serve(context.Background()))

	got := decodeResponses(t, out.String())
	require.Len(t, got, 1)
	assert.Equal(t, "invalid_json", got[""].ErrorCode)
}

func TestServeAssignsMissingID(t *testing.T) {
	var out syncBuffer
	a := NewAdapter(newTestService(t, afero.NewMemMapFs()), "shell", strings.NewReader(`{"cmd":"check_license"}`+"\n"), &out, nil)
	require.NoError(t, a.Serve(context.Background()))

	got := decodeResponses(t, out.String())
	require.Len(t, got, 1)
	for id, resp := range got {
		assert.NotEmpty(t, id)
		assert.Equal(t, "ok", resp.Status)
	}
}

func TestServeConcurrentRequests(t *testing.T) {
	fs := afero.NewMemMapFs()
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, fmt.Sprintf(`{"id":"w%d","cmd":"write_file","args":{"file_path":"/c/%d/f.txt","content":"%d"}}`, i, i, i))
	}
	var out syncBuffer
	a := NewAdapter(newTestService(t, fs), "shell", strings.NewReader(strings.Join(lines, "\n")), &out, nil)
	require.NoError(t, a.Serve(context.Background()))

	got := decodeResponses(t, out.String())
	require.Len(t, got, 50)
	for i := 0; i < 50; i++ {
		assert.Equal(t, "ok", got[fmt.Sprintf("w%d", i)].Status)
	}
}

func TestStartStop(t *testing.T) {
	pr, pw := io.Pipe()
	var out syncBuffer
	a := NewAdapter(newTestService(t, afero.NewMemMapFs()), "shell", pr, &out, nil)
	require.NoError(t, a.Start(context.Background()))
	require.Error(t, a.Start(context.Background()), "second start must fail")

	_, err := pw.Write([]byte(`{"id":"x","cmd":"check_license"}` + "\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"id":"x"`) }, time.Second, 10*time.Millisecond)

	require.NoError(t, pw.Close())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx), "stop is idempotent")
}

func TestDoneClosesOnEOF(t *testing.T) {
	a := NewAdapter(newTestService(t, afero.NewMemMapFs()), "shell", strings.NewReader(`{"id":"a","cmd":"check_license"}`+"\n"), io.Discard, nil)
	assert.Nil(t, a.Done())
	require.NoError(t, a.Start(context.Background()))

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("done was not closed after EOF")
	}
	require.NoError(t, a.Stop(context.Background()))
}

func TestStopWhileInputOpen(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	var out syncBuffer
	a := NewAdapter(newTestService(t, afero.NewMemMapFs()), "shell", pr, &out, nil)
	require.NoError(t, a.Start(context.Background()))

	_, err := pw.Write([]byte(`{"id":"x","cmd":"check_license"}` + "\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"id":"x"`) }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	started := time.Now()
	require.NoError(t, a.Stop(ctx))
	assert.Less(t, time.Since(started), 500*time.Millisecond)

	select {
	case <-a.Done():
	default:
		t.Fatal("done must be closed after stop")
	}
}

type blockingReader struct{ unblock chan struct{} }

func (r blockingReader) Read(p []byte) (int, error) {
	<-r.unblock
	return 0, io.EOF
}

func TestServeReturnsOnCancelWithBlockedReader(t *testing.T) {
	in := blockingReader{unblock: make(chan struct{})}
	defer close(in.unblock)
	a := NewAdapter(newTestService(t, afero.NewMemMapFs()), "shell", in, io.Discard, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeEchoesIDOnBadArgs(t *testing.T) {
	var out syncBuffer
	in := `{"id":"42","cmd":"write_file","args":{"file_path":"/x.txt","content":5}}` + "\n"
	a := NewAdapter(newTestService(t, afero.NewMemMapFs()), "shell", strings.NewReader(in), &out, nil)
	require.NoError(t, a.Serve(context.Background()))

	got := decodeResponses(t, out.String())
	require.Len(t, got, 1)
	resp, ok := got["42"]
	require.True(t, ok, "reply must carry the request id: %s", out.String())
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "invalid_argument", resp.ErrorCode)
}
