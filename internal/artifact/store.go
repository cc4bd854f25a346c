package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"evoforge/internal/logging"
)

// Store persists artifact versions on disk, one directory per task with one
// numbered file per version. Versions are immutable once written.
type Store struct {
	mu   sync.Mutex
	root string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) taskDir(taskID string) string {
	return filepath.Join(s.root, taskID)
}

func versionFile(version int) string {
	return fmt.Sprintf("v%04d.txt", version)
}

// Save writes a new artifact version. Returns an error if the version already
// exists.
func (s *Store) Save(a *Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.taskDir(a.TaskID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create task dir: %w", err)
	}
	path := filepath.Join(dir, versionFile(a.Version))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("artifact version %d already exists for task %s", a.Version, a.TaskID)
	}
	if err := os.WriteFile(path, []byte(a.Content), 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	logging.Get(logging.CategoryStore).Debug("saved artifact task=%s version=%d bytes=%d", a.TaskID, a.Version, len(a.Content))
	return nil
}

// Load reads one artifact version.
func (s *Store) Load(taskID string, version int) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Join(s.taskDir(taskID), versionFile(version)))
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact v%d for task %s: %w", version, taskID, err)
	}
	return &Artifact{TaskID: taskID, Version: version, Content: string(data)}, nil
}

// Latest returns the highest saved version for a task.
func (s *Store) Latest(taskID string) (*Artifact, error) {
	versions, err := s.Versions(taskID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("no artifact versions for task %s", taskID)
	}
	return s.Load(taskID, versions[len(versions)-1])
}

// Versions lists saved version numbers for a task in ascending order.
func (s *Store) Versions(taskID string) ([]int, error) {
	entries, err := os.ReadDir(s.taskDir(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list artifact versions: %w", err)
	}
	var versions []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".txt"))
		if err != nil {
			continue
		}
		versions = append(versions, n)
	}
	sort.Ints(versions)
	return versions, nil
}
