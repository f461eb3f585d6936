package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/match"
)

// DocumentInfo is a directory listing entry for one knowledge document.
type DocumentInfo struct {
	Filename string    `json:"filename"`
	Modified time.Time `json:"modified"`
	Size     int64     `json:"size"`
}

// Store reads and writes markdown knowledge documents under a single
// directory. Document content is immutable once written; a regenerated
// document is simply new bytes with a new hash.
type Store struct {
	dir string
	log *logger.Logger
}

func NewStore(dir string, baseLog *logger.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("knowledge dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge dir %s: %w", dir, err)
	}
	return &Store{dir: dir, log: baseLog.With("component", "KnowledgeStore")}, nil
}

func (s *Store) Dir() string { return s.dir }

// List returns the markdown documents in the store, sorted by filename.
func (s *Store) List() ([]DocumentInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}
	var out []DocumentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".md" && ext != ".markdown" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.log.Warn("Could not stat knowledge document", "filename", name, "error", err)
			continue
		}
		out = append(out, DocumentInfo{
			Filename: name,
			Modified: info.ModTime().UTC(),
			Size:     info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// Read returns the raw bytes of one document.
func (s *Store) Read(filename string) ([]byte, error) {
	clean := filepath.Base(filename)
	if clean != filename || clean == "." || clean == "" {
		return nil, fmt.Errorf("invalid knowledge filename %q", filename)
	}
	return os.ReadFile(filepath.Join(s.dir, clean))
}

// ContentHash reads a document and returns its SHA-256.
func (s *Store) ContentHash(filename string) (string, error) {
	raw, err := s.Read(filename)
	if err != nil {
		return "", err
	}
	return match.ContentHash(raw), nil
}

// Write stores a document atomically (temp file + rename) so concurrent
// readers never see a half-written header.
func (s *Store) Write(filename string, content []byte) error {
	clean := filepath.Base(filename)
	if clean != filename || clean == "." || clean == "" {
		return fmt.Errorf("invalid knowledge filename %q", filename)
	}
	tmp, err := os.CreateTemp(s.dir, ".kb-*")
	if err != nil {
		return fmt.Errorf("create temp knowledge file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write knowledge file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close knowledge file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, clean)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename knowledge file: %w", err)
	}
	return nil
}
