// Package sslkeylog tails an NSS key-log format file (as written by
// SSLKEYLOGFILE-aware browsers) and indexes its entries in memory. Entries
// are never logged, only counted.
package sslkeylog

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/netpix/netpix/pkg/logger"
)

// Store is a thread-safe index of NSS key-log entries, keyed by
// "LABEL_clientRandom".
type Store struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func newStore() *Store {
	return &Store{secrets: make(map[string]string)}
}

// Get looks up the secret for a given label and client random id.
func (s *Store) Get(label, id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.secrets[key(label, id)]
	return v, ok
}

// Len reports the number of indexed secrets, for diagnostics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.secrets)
}

func (s *Store) add(label, id, secret string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(label, id)
	if _, exists := s.secrets[k]; exists {
		return false
	}
	s.secrets[k] = secret
	return true
}

func key(label, id string) string { return label + "_" + id }

// Watcher tails a key-log file on a 1s poll, tolerating rotation/truncation.
type Watcher struct {
	path  string
	store *Store
	log   *logger.Logger
}

// NewWatcher creates a watcher for path. If path is empty, Start returns
// immediately and the Store stays empty (the SSLKEYLOGFILE env var wasn't
// set).
func NewWatcher(path string) *Watcher {
	return &Watcher{path: path, store: newStore(), log: logger.Default().WithComponent("sslkeylog")}
}

// Store returns the watcher's backing store.
func (w *Watcher) Store() *Store { return w.store }

// Start runs the tail loop until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	if w.path == "" {
		w.log.Info().Msg("SSLKEYLOGFILE not set, watcher idle")
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			offset = w.tailOnce(offset)
		}
	}
}

func (w *Watcher) tailOnce(offset int64) int64 {
	f, err := os.Open(w.path)
	if err != nil {
		w.log.Debug().Err(err).Str("path", w.path).Msg("cannot open key log file")
		return offset
	}
	defer f.Close()

	info, err := f.Stat()
	if err == nil && info.Size() < offset {
		offset = 0
	}

	if _, err := f.Seek(offset, 0); err != nil {
		w.log.Warn().Err(err).Msg("key log seek error")
		return offset
	}

	scanner := bufio.NewScanner(f)
	var read int64
	for scanner.Scan() {
		line := scanner.Text()
		read += int64(len(line)) + 1
		w.processLine(line)
	}
	return offset + read
}

// ProcessLineForTest exercises the line parser directly, without a file on
// disk backing the watcher's poll loop.
func (w *Watcher) ProcessLineForTest(line string) {
	w.processLine(line)
}

func (w *Watcher) processLine(line string) {
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return
	}
	w.store.add(fields[0], fields[1], fields[2])
}
