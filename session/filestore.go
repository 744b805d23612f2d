package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
)

// fileContents is the on-disk layout of a FileStore: one key-value namespace
// per origin, so several apps can share a file the way they share a browser.
type fileContents struct {
	Origins map[string]map[string]string `json:"origins"`
}

// errCorruptFile marks a session file that exists but is not valid JSON.
var errCorruptFile = errors.New("corrupt session file")

// FileStore is a Store persisted as JSON on disk. Writes take a lock sidecar
// and replace the file atomically.
type FileStore struct {
	path   string
	origin string
}

// NewFileStore returns a FileStore for path, scoped to the origin of
// originURL (scheme://host[:port]).
func NewFileStore(path, originURL string) (*FileStore, error) {
	origin, err := Origin(originURL)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, origin: origin}, nil
}

// Origin returns the scheme://host[:port] part of rawURL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid origin URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin URL must include scheme and host: %q", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func (s *FileStore) Get(key string) (string, error) {
	contents, err := s.read()
	if err != nil {
		return "", err
	}
	return contents.Origins[s.origin][key], nil
}

func (s *FileStore) Set(key, value string) error {
	return s.update(func(values map[string]string) {
		values[key] = value
	})
}

func (s *FileStore) Delete(key string) error {
	return s.update(func(values map[string]string) {
		delete(values, key)
	})
}

func (s *FileStore) read() (*fileContents, error) {
	var contents fileContents
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &contents, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptFile, err)
	}
	return &contents, nil
}

func (s *FileStore) update(mutate func(values map[string]string)) error {
	lock, err := lockStoreFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.unlock()

	contents, err := s.read()
	if errors.Is(err, errCorruptFile) {
		// A corrupt file is replaced rather than blocking every write.
		contents = &fileContents{}
	} else if err != nil {
		return err
	}
	if contents.Origins == nil {
		contents.Origins = make(map[string]map[string]string)
	}
	values := contents.Origins[s.origin]
	if values == nil {
		values = make(map[string]string)
		contents.Origins[s.origin] = values
	}
	mutate(values)
	if len(values) == 0 {
		delete(contents.Origins, s.origin)
	}

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return err
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; also failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
