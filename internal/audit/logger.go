package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one line of the session audit trail. Scope names the credential
// slot the session lived in, so several consoles can share one trail.
type Event struct {
	At      time.Time `json:"at"`
	Scope   string    `json:"scope,omitempty"`
	Actor   string    `json:"actor"`
	Action  string    `json:"action"`
	Target  string    `json:"target,omitempty"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}

// Logger appends events as JSON lines. A nil Logger or empty path discards.
type Logger struct {
	path  string
	scope string
	now   func() time.Time
	mu    sync.Mutex
}

func NewLogger(path, scope string) *Logger {
	return &Logger{path: path, scope: scope, now: time.Now}
}

func (l *Logger) Log(actor, action, target, outcome, detail string) error {
	if l == nil || l.path == "" {
		return nil
	}
	b, err := json.Marshal(Event{
		At:      l.now().UTC().Truncate(time.Second),
		Scope:   l.scope,
		Actor:   actor,
		Action:  action,
		Target:  target,
		Outcome: outcome,
		Detail:  detail,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	// Holds user emails.
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log entry: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest events recorded for this
// logger's scope, oldest first. Lines from other scopes and lines that do not
// decode are skipped. A missing trail yields no events.
func (l *Logger) Recent(limit int) ([]Event, error) {
	if l == nil || l.path == "" || limit <= 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.Scope != l.scope {
			continue
		}
		events = append(events, e)
		if len(events) > limit {
			events = events[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log file: %w", err)
	}
	return events, nil
}
