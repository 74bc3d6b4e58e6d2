package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/crypto"
)

// BlobDirName is the blob directory inside a vault directory.
const BlobDirName = "vault_data"

// FileStore keeps one file per blob under <vault dir>/vault_data. Fresh-id
// writes go straight to the final name (nothing existing can tear); in-place
// overwrites of an existing id go through the atomic writer.
type FileStore struct {
	dir string
}

// NewFileStore creates a blob store rooted in the given vault directory.
func NewFileStore(vaultDir string) *FileStore {
	return &FileStore{dir: filepath.Join(vaultDir, BlobDirName)}
}

// Write implements BlobStore.
func (fs *FileStore) Write(data []byte, sess *crypto.Session, existingID string) (string, error) {
	payload := data
	if sess.Active() {
		sealed, err := crypto.Encrypt(data, sess.Key())
		if err != nil {
			return "", err
		}
		payload = sealed
	}

	id := existingID
	if id == "" {
		fresh, err := crypto.NewBlobID()
		if err != nil {
			return "", apperr.Wrap(apperr.CodeCrypto, "failed to allocate blob id", err)
		}
		id = fresh
	}

	path, err := fs.blobPath(id)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(fs.dir, 0o700); err != nil {
		return "", apperr.Wrap(apperr.CodeIO, "failed to create blob directory", err)
	}

	if existingID != "" {
		// Overwrite of a live blob: keep either the old or the new bytes
		// intact across a crash.
		if err := AtomicWriteFile(path, payload); err != nil {
			return "", apperr.Wrapf(apperr.CodeIO, err, "failed to overwrite blob %s", id)
		}
		return id, nil
	}

	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", apperr.Wrapf(apperr.CodeIO, err, "failed to write blob %s", id)
	}
	return id, nil
}

// Read implements BlobStore.
func (fs *FileStore) Read(id string, sess *crypto.Session) ([]byte, error) {
	path, err := fs.blobPath(id)
	if err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Newf(apperr.CodeNotFound, "blob %s not found", id)
		}
		return nil, apperr.Wrapf(apperr.CodeIO, err, "failed to read blob %s", id)
	}

	if sess.Active() {
		return crypto.Decrypt(payload, sess.Key())
	}
	return payload, nil
}

// Delete implements BlobStore.
func (fs *FileStore) Delete(id string) error {
	path, err := fs.blobPath(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.Wrapf(apperr.CodeIO, err, "failed to delete blob %s", id)
	}
	return nil
}

// List implements BlobStore.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.CodeIO, "failed to list blob directory", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ids = append(ids, entry.Name())
	}
	return ids, nil
}

// Dir returns the blob directory path.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// blobPath validates the id and maps it to its on-disk path. Ids become file
// names, so anything resembling a path component is rejected.
func (fs *FileStore) blobPath(id string) (string, error) {
	if id == "" || strings.Contains(id, "..") ||
		strings.ContainsRune(id, '/') || strings.ContainsRune(id, '\\') {
		return "", apperr.Newf(apperr.CodeInvalidData, "invalid blob id %q", id)
	}
	return filepath.Join(fs.dir, id), nil
}

var _ BlobStore = (*FileStore)(nil)
