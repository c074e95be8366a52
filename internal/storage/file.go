package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// jsonStore keeps the list as one indented JSON array.
//
// Writes go to <path>.tmp and are renamed over <path>, so a crash mid-save
// leaves the previous file intact.
//
// Elements that failed to decode on the last Load are written back verbatim
// after the list, so fixing them by hand stays possible.
type jsonStore struct {
	log  logx.Logger
	path string

	mu   sync.Mutex
	kept []json.RawMessage
}

func openJSON(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for json driver")
	}
	return &jsonStore{log: log, path: path}, nil
}

func (s *jsonStore) Close() error { return nil }

func (s *jsonStore) Save(ctx context.Context, list []reminder.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if list == nil {
		list = []reminder.Reminder{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var v any = list
	if len(s.kept) > 0 {
		all := make([]any, 0, len(list)+len(s.kept))
		for _, r := range list {
			all = append(all, r)
		}
		for _, raw := range s.kept {
			all = append(all, raw)
		}
		v = all
		s.log.Warn("keeping unreadable reminder entries in file", logx.String("path", s.path), logx.Int("count", len(s.kept)))
	}
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *jsonStore) Load(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.kept = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		s.kept = nil
		return nil, nil
	}
	entries, kept, err := decodeEntries(b)
	if err != nil {
		return nil, err
	}
	s.kept = kept
	return entries, nil
}

// decodeEntries splits the array first so one bad element cannot poison
// the rest. Unknown fields are ignored. Undecodable non-null elements are
// also returned raw.
func decodeEntries(b []byte) ([]Entry, []json.RawMessage, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, nil, fmt.Errorf("decode reminder array: %w", err)
	}
	var kept []json.RawMessage
	out := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			out = append(out, malformedEntry(i, errors.New("null entry")))
			continue
		}
		var r reminder.Reminder
		if err := json.Unmarshal(raw, &r); err != nil {
			out = append(out, malformedEntry(i, err))
			kept = append(kept, raw)
			continue
		}
		out = append(out, Entry{Index: i, Reminder: r})
	}
	return out, kept, nil
}
