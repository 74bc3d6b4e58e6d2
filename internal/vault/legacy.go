package vault

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/audit"
	"github.com/coffer-fs/coffer/internal/domain"
	"github.com/coffer-fs/coffer/internal/store"
)

// The legacy tree is plain JSON. It predates the encrypted container and
// exists only while the vault is NotInitialized; its blobs are plaintext.

type legacyNode struct {
	Kind     string                 `json:"kind"`
	BlobID   string                 `json:"blob_id,omitempty"`
	Size     int64                  `json:"size,omitempty"`
	Children map[string]*legacyNode `json:"children,omitempty"`
	Created  time.Time              `json:"created"`
	Modified time.Time              `json:"modified"`
}

type legacyState struct {
	Root    *legacyNode `json:"root"`
	HomeDir string      `json:"home_dir"`
}

const (
	legacyKindFile      = "file"
	legacyKindDirectory = "directory"
)

func loadLegacyState(dir string) (*domain.VaultState, error) {
	data, err := os.ReadFile(LegacyPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.CodeNotFound, "no legacy state file")
		}
		return nil, apperr.Wrap(apperr.CodeIO, "reading legacy state", err)
	}

	var ls legacyState
	if err := json.Unmarshal(data, &ls); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidData, "malformed legacy state", err)
	}
	if ls.Root == nil || ls.Root.Kind != legacyKindDirectory {
		return nil, apperr.New(apperr.CodeInvalidData, "legacy state root must be a directory")
	}

	root, err := legacyToNode(ls.Root)
	if err != nil {
		return nil, err
	}
	home := ls.HomeDir
	if home == "" {
		home = domain.DefaultHomeDir
	}
	return &domain.VaultState{Root: root, HomeDir: home}, nil
}

func saveLegacyState(dir string, state *domain.VaultState) error {
	ls := legacyState{Root: nodeToLegacy(state.Root), HomeDir: state.HomeDir}
	data, err := json.MarshalIndent(ls, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.CodeSerialization, "encoding legacy state", err)
	}
	if err := store.AtomicWriteFile(LegacyPath(dir), data); err != nil {
		return apperr.Wrap(apperr.CodeIO, "writing legacy state", err)
	}
	return nil
}

func legacyToNode(ln *legacyNode) (*domain.Node, error) {
	switch ln.Kind {
	case legacyKindFile:
		return &domain.Node{
			Kind:     domain.KindFile,
			BlobID:   ln.BlobID,
			Size:     ln.Size,
			Created:  ln.Created,
			Modified: ln.Modified,
		}, nil
	case legacyKindDirectory:
		node := &domain.Node{
			Kind:     domain.KindDirectory,
			Children: make(map[string]*domain.Node, len(ln.Children)),
			Created:  ln.Created,
			Modified: ln.Modified,
		}
		for name, child := range ln.Children {
			if err := validateName(name); err != nil {
				return nil, err
			}
			converted, err := legacyToNode(child)
			if err != nil {
				return nil, err
			}
			node.Children[name] = converted
		}
		return node, nil
	default:
		return nil, apperr.Newf(apperr.CodeInvalidData, "unknown legacy node kind %q", ln.Kind)
	}
}

func nodeToLegacy(n *domain.Node) *legacyNode {
	if n.Kind == domain.KindFile {
		return &legacyNode{
			Kind:     legacyKindFile,
			BlobID:   n.BlobID,
			Size:     n.Size,
			Created:  n.Created,
			Modified: n.Modified,
		}
	}
	ln := &legacyNode{
		Kind:     legacyKindDirectory,
		Children: make(map[string]*legacyNode, len(n.Children)),
		Created:  n.Created,
		Modified: n.Modified,
	}
	for name, child := range n.Children {
		ln.Children[name] = nodeToLegacy(child)
	}
	return ln
}

// ImportLegacy adopts a pre-vault fs.json tree into the encrypted vault:
// every legacy blob is re-read as plaintext, re-written encrypted under a
// fresh id, and the legacy tree is merged into the current root (directories
// merge, files are replaced by the incoming ones). On success the fs.json
// file and the plaintext blobs are removed best-effort. Returns the number
// of files imported. Requires Unlocked.
func (v *Vault) ImportLegacy() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.status != domain.StatusUnlocked {
		return 0, apperr.New(apperr.CodeLocked, "vault is locked")
	}

	legacy, err := loadLegacyState(v.dir)
	if err != nil {
		return 0, err
	}

	now := v.now()
	imported := 0
	var adopt func(n *domain.Node) error
	adopt = func(n *domain.Node) error {
		if n.Kind == domain.KindFile {
			data, err := v.blobs.Read(n.BlobID, nil)
			if err != nil {
				return err
			}
			id, err := v.blobs.Write(data, v.session, "")
			if err != nil {
				return err
			}
			n.BlobID = id
			imported++
			return nil
		}
		for _, child := range n.Children {
			if err := adopt(child); err != nil {
				return err
			}
		}
		return nil
	}

	plaintextIDs := collectBlobIDs(legacy.Root, nil)
	if err := adopt(legacy.Root); err != nil {
		return 0, err
	}

	var replaced []string
	for name, child := range legacy.Root.Children {
		replaced = mergeChild(v.state.Root, name, child, now, replaced)
	}
	v.state.Root.Modified = now

	if err := v.persistLocked(); err != nil {
		return 0, err
	}

	v.releaseBlobs(replaced)
	v.releaseBlobs(plaintextIDs)
	if err := os.Remove(LegacyPath(v.dir)); err != nil && !os.IsNotExist(err) {
		v.logger.Warn("removing legacy state file failed", "err", err)
	}

	v.record(audit.EventLegacyImport, map[string]string{"files": strconv.Itoa(imported)})
	v.logger.Info("legacy state imported", "files", imported)
	return imported, nil
}
