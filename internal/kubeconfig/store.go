// Package kubeconfig owns all disk I/O against the kubeconfig file.
//
// The document type is clientcmd's api.Config, which keeps
// provider-specific auth stanzas and extension blocks intact so the
// file stays compatible with every other tool writing to it. Saves are
// atomic: serialize to a temp file in the same directory, fsync, rename
// over the target. The first save in a process lifetime leaves a
// timestamped backup next to the original.
package kubeconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"

	"ktx/pkg/logging"
)

// For mocking in tests
var osCreateTemp = os.CreateTemp

// DefaultPath returns the kubeconfig path ktx operates on when none is
// given explicitly: $KUBECONFIG if set, otherwise ~/.kube/config.
func DefaultPath() string {
	if env := os.Getenv(clientcmd.RecommendedConfigPathEnvVar); env != "" {
		return filepath.SplitList(env)[0]
	}
	return clientcmd.RecommendedHomeFile
}

// Store loads, validates and persists a kubeconfig document.
type Store struct {
	mu         sync.Mutex
	backupDone bool

	// now is a seam for tests of backup naming.
	now func() time.Time
}

// NewStore creates a Store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Load reads and parses the kubeconfig at path.
func (s *Store) Load(path string) (*api.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat kubeconfig %q: %w", path, err)
	}
	config, err := clientcmd.LoadFromFile(path)
	if err != nil {
		return nil, wrapLoadError(path, err)
	}
	return config, nil
}

// wrapLoadError classifies a load failure: permission problems pass
// through as plain I/O errors, everything else is a parse failure.
func wrapLoadError(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("failed to read kubeconfig %q: %w", path, err)
	}
	return &ParseError{Path: path, Err: err}
}

// Validate checks that every context reference resolves. It does not
// touch the disk.
func (s *Store) Validate(doc *api.Config) error {
	for name, ctx := range doc.Contexts {
		if ctx == nil {
			return &DanglingReferenceError{Context: name, Kind: "cluster", Name: ""}
		}
		if _, ok := doc.Clusters[ctx.Cluster]; !ok {
			return &DanglingReferenceError{Context: name, Kind: "cluster", Name: ctx.Cluster}
		}
		if _, ok := doc.AuthInfos[ctx.AuthInfo]; !ok {
			return &DanglingReferenceError{Context: name, Kind: "user", Name: ctx.AuthInfo}
		}
	}
	return nil
}

// Save validates doc and writes it to path atomically. A concurrent
// writer holding the advisory lock blocks the save rather than
// interleaving with it.
func (s *Store) Save(doc *api.Config, path string) error {
	if err := s.Validate(doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("failed to acquire lock: %w", err)}
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	if err := s.backupOnce(path); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	data, err := clientcmd.Write(*doc)
	if err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("serialization failed: %w", err)}
	}

	dir := filepath.Dir(path)
	tmp, err := osCreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	logging.Debug("kubeconfig", "saved %s (%d contexts)", path, len(doc.Contexts))
	return nil
}

// backupOnce copies the current file to <path>.bak-<timestamp> before
// the first save of this process. Missing originals need no backup.
func (s *Store) backupOnce(path string) error {
	if s.backupDone {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.backupDone = true
			return nil
		}
		return err
	}
	backupPath := fmt.Sprintf("%s.bak-%s", path, s.now().Format("20060102-150405"))
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write backup %q: %w", backupPath, err)
	}
	s.backupDone = true
	logging.Info("kubeconfig", "backup written to %s", backupPath)
	return nil
}

// DeepCopy returns an independent copy of doc, used by the session as
// its rollback snapshot.
func DeepCopy(doc *api.Config) *api.Config {
	return doc.DeepCopy()
}
