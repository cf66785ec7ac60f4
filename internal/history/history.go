package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sync"
	"time"

	"babelchat/internal/types"

	"github.com/samber/lo"
)

// Store is an append-only message log with time-based eviction. Every
// mutation schedules an asynchronous full-snapshot rewrite of a single
// JSON file; the in-memory log stays authoritative regardless of
// snapshot outcomes.
type Store struct {
	mu        sync.Mutex
	messages  []types.Message
	path      string
	retention time.Duration
	log       *log.Logger
	saveChan  chan struct{}
	stop      chan struct{}
	done      chan struct{}
}

func NewStore(path string, retention time.Duration, logger *log.Logger) *Store {
	return &Store{
		path:      path,
		retention: retention,
		log:       logger,
		saveChan:  make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Load hydrates the store from a prior snapshot. A missing or corrupt
// snapshot leaves the store empty and is never fatal.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	var messages []types.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		s.log.Printf("corrupt snapshot %q, starting with empty history: %v", s.path, err)
		return nil
	}

	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()

	return nil
}

// Run starts the background saver.
func (s *Store) Run() {
	go s.saver()
}

func (s *Store) saver() {
	defer close(s.done)
	for {
		select {
		case <-s.saveChan:
			if err := s.snapshot(); err != nil {
				s.log.Println("snapshot:", err)
			}
		case <-s.stop:
			// final write so a clean shutdown loses nothing
			if err := s.snapshot(); err != nil {
				s.log.Println("snapshot:", err)
			}
			return
		}
	}
}

// Stop flushes a final snapshot and stops the saver.
func (s *Store) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Store) Append(msg types.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.scheduleSave()
}

// Replay returns the room's messages oldest first.
func (s *Store) Replay(roomID string) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Filter(s.messages, func(m types.Message, _ int) bool {
		return m.RoomId == roomID
	})
}

// All returns a copy of the entire log in arrival order.
func (s *Store) All() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.messages)
}

// SweepExpired drops every message older than the retention window and
// returns the number removed.
func (s *Store) SweepExpired(now time.Time) int {
	cutoff := now.Add(-s.retention).UnixMilli()

	s.mu.Lock()
	kept := lo.Filter(s.messages, func(m types.Message, _ int) bool {
		return m.Timestamp > cutoff
	})
	removed := len(s.messages) - len(kept)
	s.messages = kept
	s.mu.Unlock()

	if removed > 0 {
		s.scheduleSave()
	}
	return removed
}

// scheduleSave coalesces: a pending signal already covers this change.
func (s *Store) scheduleSave() {
	select {
	case s.saveChan <- struct{}{}:
	default:
	}
}

func (s *Store) snapshot() error {
	data, err := json.Marshal(s.All())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	return nil
}
