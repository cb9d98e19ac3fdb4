package notify

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends one JSON line per notification. It is the default sink;
// external delivery (desktop, chat) can replace it behind the Sink interface.
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (f *FileSink) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer fh.Close()

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fh.Write(append(b, '\n'))
	return err
}
