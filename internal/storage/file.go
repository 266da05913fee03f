package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"countdown/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.targets.json         (rewritten atomically on change)
//   - <prefix>.history.jsonl        (append-only JSON Lines)
//   - <prefix>.dedup.snapshot.json  (periodic snapshot)
//   - <prefix>.dedup.journal.jsonl  (append-only journal)
//
// The dedup journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	targetsPath string
	targets     map[string]TargetRecord

	historyFile *os.File

	dedupSnapshotPath string
	dedupJournalFile  *os.File
	dedup             map[string]int64 // unix milli

	dedupWrites int
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	targetsPath := prefix + ".targets.json"
	historyPath := prefix + ".history.jsonl"
	snapPath := prefix + ".dedup.snapshot.json"
	journalPath := prefix + ".dedup.journal.jsonl"

	targets := map[string]TargetRecord{}
	if err := loadJSON(targetsPath, &targets); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("targets snapshot unreadable; starting empty", logx.String("path", targetsPath), logx.Err(err))
		targets = map[string]TargetRecord{}
	}

	hf, err := os.OpenFile(historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	dedup := map[string]int64{}
	_ = loadJSON(snapPath, &dedup)
	_ = replayDedupJournal(journalPath, dedup)
	pruneExpiredDedup(dedup)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = hf.Close()
		return nil, err
	}

	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("targets", len(targets)))
	return &fileStore{
		log:               log,
		targetsPath:       targetsPath,
		targets:           targets,
		historyFile:       hf,
		dedupSnapshotPath: snapPath,
		dedupJournalFile:  jf,
		dedup:             dedup,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.historyFile != nil {
		err1 = s.historyFile.Close()
		s.historyFile = nil
	}
	if s.dedupJournalFile != nil {
		err2 = s.dedupJournalFile.Close()
		s.dedupJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) PutTarget(ctx context.Context, r TargetRecord) error {
	_ = ctx
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return errors.New("target name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return errors.New("store closed")
	}
	prev, had := s.targets[r.Name]
	s.targets[r.Name] = r
	if err := writeJSONAtomic(s.targetsPath, s.targets); err != nil {
		if had {
			s.targets[r.Name] = prev
		} else {
			delete(s.targets, r.Name)
		}
		return err
	}
	return nil
}

func (s *fileStore) GetTarget(ctx context.Context, name string) (TargetRecord, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.targets[strings.TrimSpace(name)]
	return r, ok, nil
}

func (s *fileStore) DeleteTarget(ctx context.Context, name string) error {
	_ = ctx
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return errors.New("store closed")
	}
	if _, ok := s.targets[name]; !ok {
		return nil
	}
	delete(s.targets, name)
	return writeJSONAtomic(s.targetsPath, s.targets)
}

func (s *fileStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return errors.New("history file closed")
	}
	return json.NewEncoder(s.historyFile).Encode(e)
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupJournalFile == nil {
		return errors.New("dedup journal closed")
	}
	s.dedup[key] = ms

	if err := json.NewEncoder(s.dedupJournalFile).Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.dedupWrites++
	if s.dedupWrites%1000 == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactLocked() error {
	pruneExpiredDedup(s.dedup)
	if err := writeJSONAtomic(s.dedupSnapshotPath, s.dedup); err != nil {
		return err
	}
	if err := s.dedupJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.dedupJournalFile.Seek(0, 2)
	return err
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadJSON(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func replayDedupJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r dedupRecord
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return s.Err()
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
