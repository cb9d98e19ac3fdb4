package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "agentpulse/pkg/logx"
)

const sessionFile = "session.json"

var backupPattern = regexp.MustCompile(`^session_(\d+)\.backup$`)

// Info is the persisted conversation identity shared by every invocation.
type Info struct {
	ID         string    `json:"sessionId"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// Registry owns the single process-wide session identity. At most one live
// identity exists at a time; all operations are serialized by an internal
// lock so the queue and admin callers (reset/backup) cannot interleave a
// read-modify-write.
type Registry struct {
	mu  sync.Mutex
	dir string
	log logx.Logger
}

func NewRegistry(dir string, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{dir: dir, log: log}
}

func (r *Registry) path() string { return filepath.Join(r.dir, sessionFile) }

// GetOrCreate returns the current identity, creating and persisting a fresh
// one when none exists. isNew tells the caller which invocation shape to use:
// a new identity needs the init system prompt and an explicit session id, a
// resumed one needs the resume directive. LastUsedAt is touched either way.
func (r *Registry) GetOrCreate() (Info, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	existing, err := r.readLocked()
	if err != nil {
		return Info{}, false, err
	}
	if existing != nil {
		existing.LastUsedAt = now
		if err := r.writeLocked(*existing); err != nil {
			return Info{}, false, err
		}
		return *existing, false, nil
	}

	info := Info{ID: uuid.NewString(), CreatedAt: now, LastUsedAt: now}
	if err := r.writeLocked(info); err != nil {
		return Info{}, false, err
	}
	r.log.Info("session created", logx.String("session", info.ID))
	return info, true, nil
}

// Peek returns the current identity without touching it, or nil when none
// exists.
func (r *Registry) Peek() (*Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

// Reset deletes the persisted identity. Idempotent: absence is not an error.
func (r *Registry) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err == nil {
		r.log.Info("session reset")
	}
	return nil
}

// Backup archives the current identity under session_N.backup, where N is
// one above the highest existing suffix, and clears the active identity.
// ok is false when there was nothing to back up.
func (r *Registry) Backup() (name string, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.readLocked()
	if err != nil {
		return "", false, err
	}
	if existing == nil {
		return "", false, nil
	}

	next := 1
	entries, err := os.ReadDir(r.dir)
	if err != nil && !os.IsNotExist(err) {
		return "", false, err
	}
	for _, e := range entries {
		m := backupPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, convErr := strconv.Atoi(m[1]); convErr == nil && n >= next {
			next = n + 1
		}
	}

	name = fmt.Sprintf("session_%d.backup", next)
	if err := os.Rename(r.path(), filepath.Join(r.dir, name)); err != nil {
		return "", false, err
	}
	r.log.Info("session backed up", logx.String("archive", name), logx.String("session", existing.ID))
	return name, true, nil
}

func (r *Registry) readLocked() (*Info, error) {
	b, err := os.ReadFile(r.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		// A corrupt record is unrecoverable state; treat as absent so the
		// next use starts a fresh conversation.
		r.log.Warn("session record corrupt; starting fresh", logx.Err(err))
		return nil, nil
	}
	if info.ID == "" {
		return nil, nil
	}
	return &info, nil
}

func (r *Registry) writeLocked(info Info) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path(), append(b, '\n'), 0o600)
}
