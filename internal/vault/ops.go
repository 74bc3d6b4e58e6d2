package vault

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/domain"
)

// copyWorkers bounds the parallel blob duplication done by Copy and Move.
const copyWorkers = 4

// ReadDir lists a directory's children in name order. While the vault is
// locked this sees the placeholder tree, so listings look empty.
func (v *Vault) ReadDir(path string) ([]domain.NodeInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	dir, err := resolveDir(v.state.Root, path)
	if err != nil {
		return nil, err
	}

	infos := make([]domain.NodeInfo, 0, len(dir.Children))
	for _, name := range childNames(dir) {
		infos = append(infos, nodeInfo(name, childPath(path, name), dir.Children[name]))
	}
	return infos, nil
}

// Stat reports a node's metadata.
func (v *Vault) Stat(path string) (domain.NodeInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	node, err := resolveNode(v.state.Root, path)
	if err != nil {
		return domain.NodeInfo{}, err
	}

	parts, err := splitPath(path)
	if err != nil {
		return domain.NodeInfo{}, err
	}
	name := Separator
	if len(parts) > 0 {
		name = parts[len(parts)-1]
	}
	return nodeInfo(name, joinPath(parts...), node), nil
}

// ReadFile returns a file's content, decrypted when a session is active.
func (v *Vault) ReadFile(path string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	node, err := resolveNode(v.state.Root, path)
	if err != nil {
		return nil, err
	}
	if node.IsDir() {
		return nil, apperr.Newf(apperr.CodeInvalidPath, "%s is a directory", path)
	}
	return v.blobs.Read(node.BlobID, v.blobSessionLocked())
}

// CreateFolder creates an empty directory named name under dirPath. A
// sibling with the same name is a conflict.
func (v *Vault) CreateFolder(dirPath, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, err := v.mutableStateLocked()
	if err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	dir, err := resolveDir(state.Root, dirPath)
	if err != nil {
		return err
	}
	if _, exists := dir.Children[name]; exists {
		return apperr.Newf(apperr.CodeAlreadyExists, "%s already exists", childPath(dirPath, name))
	}

	now := v.now()
	dir.Children[name] = domain.NewDirectoryNode(now)
	dir.Modified = now
	return v.persistLocked()
}

// CreateFile creates a new file named name under dirPath with the given
// content (empty when nil). The blob is written before the node is grafted
// into the tree; a persist failure can therefore orphan a blob but never
// dangle a node.
func (v *Vault) CreateFile(dirPath, name string, content []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, err := v.mutableStateLocked()
	if err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	dir, err := resolveDir(state.Root, dirPath)
	if err != nil {
		return err
	}
	if _, exists := dir.Children[name]; exists {
		return apperr.Newf(apperr.CodeAlreadyExists, "%s already exists", childPath(dirPath, name))
	}

	id, err := v.blobs.Write(content, v.blobSessionLocked(), "")
	if err != nil {
		return err
	}

	now := v.now()
	dir.Children[name] = domain.NewFileNode(id, int64(len(content)), now)
	dir.Modified = now
	return v.persistLocked()
}

// WriteFile overwrites the file at path, creating it if absent. An
// existing file keeps its blob id so the node's identity is stable across
// edits.
func (v *Vault) WriteFile(path string, content []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, err := v.mutableStateLocked()
	if err != nil {
		return err
	}
	dir, name, err := resolveParent(state.Root, path)
	if err != nil {
		return err
	}

	now := v.now()
	if existing, ok := dir.Children[name]; ok {
		if existing.IsDir() {
			return apperr.Newf(apperr.CodeInvalidPath, "%s is a directory", path)
		}
		if _, err := v.blobs.Write(content, v.blobSessionLocked(), existing.BlobID); err != nil {
			return err
		}
		existing.Size = int64(len(content))
		existing.Modified = now
	} else {
		id, err := v.blobs.Write(content, v.blobSessionLocked(), "")
		if err != nil {
			return err
		}
		dir.Children[name] = domain.NewFileNode(id, int64(len(content)), now)
	}
	dir.Modified = now
	return v.persistLocked()
}

// Rename gives the node at oldPath a new name inside the same directory.
func (v *Vault) Rename(oldPath, newName string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, err := v.mutableStateLocked()
	if err != nil {
		return err
	}
	if err := validateName(newName); err != nil {
		return err
	}
	dir, oldName, err := resolveParent(state.Root, oldPath)
	if err != nil {
		return err
	}
	node, ok := dir.Children[oldName]
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "%s not found", oldPath)
	}
	if oldName == newName {
		return nil
	}
	if _, exists := dir.Children[newName]; exists {
		return apperr.Newf(apperr.CodeAlreadyExists, "%q already exists", newName)
	}

	now := v.now()
	delete(dir.Children, oldName)
	dir.Children[newName] = node
	node.Modified = now
	dir.Modified = now
	return v.persistLocked()
}

// Delete removes the subtree at path. Detaching the node and persisting the
// tree is the transaction boundary; blob cleanup afterwards is best-effort,
// so a cleanup failure leaks a blob rather than corrupting metadata.
func (v *Vault) Delete(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, err := v.mutableStateLocked()
	if err != nil {
		return err
	}
	dir, name, err := resolveParent(state.Root, path)
	if err != nil {
		return err
	}
	node, ok := dir.Children[name]
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "%s not found", path)
	}

	ids := collectBlobIDs(node, nil)
	delete(dir.Children, name)
	dir.Modified = v.now()
	if err := v.persistLocked(); err != nil {
		dir.Children[name] = node
		return err
	}

	v.releaseBlobs(ids)
	return nil
}

// Copy deep-copies each source into the destination directory under its
// original name. Every file in a copied subtree gets a brand-new blob, so a
// copy is never an alias of its source. When the destination already has an
// entry with the same name, directories merge child-by-child and files are
// replaced by the incoming copy.
func (v *Vault) Copy(sources []string, destDir string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.copyLocked(sources, destDir, nil)
}

// CopyWithName deep-copies a single source into destDir under newName.
func (v *Vault) CopyWithName(source, destDir, newName string) error {
	if err := validateName(newName); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.copyLocked([]string{source}, destDir, &newName)
}

// Move deep-copies each source into the destination, then detaches the
// originals and releases their blobs. It inherits Copy's identity
// guarantees; it is not a pointer move.
func (v *Vault) Move(sources []string, destDir string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, err := v.mutableStateLocked()
	if err != nil {
		return err
	}

	destParts, err := splitPath(destDir)
	if err != nil {
		return err
	}
	type origin struct {
		dir  *domain.Node
		name string
		node *domain.Node
	}
	origins := make([]origin, 0, len(sources))
	for _, src := range sources {
		srcParts, err := splitPath(src)
		if err != nil {
			return err
		}
		if pathWithin(srcParts, destParts) {
			return apperr.Newf(apperr.CodeInvalidPath, "cannot move %s into itself", src)
		}
		dir, name, err := resolveParent(state.Root, src)
		if err != nil {
			return err
		}
		node, ok := dir.Children[name]
		if !ok {
			return apperr.Newf(apperr.CodeNotFound, "%s not found", src)
		}
		origins = append(origins, origin{dir: dir, name: name, node: node})
	}

	if err := v.copyLocked(sources, destDir, nil); err != nil {
		return err
	}

	now := v.now()
	var released []string
	for _, o := range origins {
		// The merge may already have replaced the original in place (a
		// move within one directory); its blobs were released there.
		if o.dir.Children[o.name] != o.node {
			continue
		}
		released = collectBlobIDs(o.node, released)
		delete(o.dir.Children, o.name)
		o.dir.Modified = now
	}
	if err := v.persistLocked(); err != nil {
		return err
	}

	v.releaseBlobs(released)
	return nil
}

// copyLocked performs the shared deep-copy-and-graft step. rename, when
// non-nil, overrides the copied node's name and requires a single source.
// Callers hold v.mu.
func (v *Vault) copyLocked(sources []string, destDir string, rename *string) error {
	state, err := v.mutableStateLocked()
	if err != nil {
		return err
	}
	dest, err := resolveDir(state.Root, destDir)
	if err != nil {
		return err
	}

	now := v.now()
	var replaced []string
	for _, src := range sources {
		parts, err := splitPath(src)
		if err != nil {
			return err
		}
		if len(parts) == 0 {
			return apperr.New(apperr.CodeInvalidPath, "cannot copy the root directory")
		}
		node, err := resolveNode(state.Root, src)
		if err != nil {
			return err
		}

		name := parts[len(parts)-1]
		if rename != nil {
			name = *rename
		}

		clone, err := v.copySubtreeLocked(node, now)
		if err != nil {
			return err
		}
		replaced = mergeChild(dest, name, clone, now, replaced)
	}
	dest.Modified = now

	if err := v.persistLocked(); err != nil {
		return err
	}
	v.releaseBlobs(replaced)
	return nil
}

// mergeChild grafts incoming under name in dir. Directory-into-directory
// merges recurse child-by-child; anything else replaces the existing entry.
// Blob ids of replaced subtrees are appended to replaced for later release.
func mergeChild(dir *domain.Node, name string, incoming *domain.Node, now time.Time, replaced []string) []string {
	existing, ok := dir.Children[name]
	if ok && existing.IsDir() && incoming.IsDir() {
		for childName, child := range incoming.Children {
			replaced = mergeChild(existing, childName, child, now, replaced)
		}
		existing.Modified = now
		return replaced
	}
	if ok {
		replaced = collectBlobIDs(existing, replaced)
	}
	dir.Children[name] = incoming
	return replaced
}

// copySubtreeLocked rebuilds a subtree with fresh nodes and fresh blobs.
// Blob duplication runs on a bounded worker pool; on any failure the blobs
// already written are released and the error is returned. Callers hold
// v.mu.
func (v *Vault) copySubtreeLocked(src *domain.Node, now time.Time) (*domain.Node, error) {
	type job struct {
		target *domain.Node
		srcID  string
	}
	var jobs []job

	var build func(n *domain.Node) *domain.Node
	build = func(n *domain.Node) *domain.Node {
		if n.IsDir() {
			dir := domain.NewDirectoryNode(now)
			for name, child := range n.Children {
				dir.Children[name] = build(child)
			}
			return dir
		}
		file := domain.NewFileNode("", n.Size, now)
		jobs = append(jobs, job{target: file, srcID: n.BlobID})
		return file
	}
	clone := build(src)

	sess := v.blobSessionLocked()
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(copyWorkers)

	var mu sync.Mutex
	var written []string
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			data, err := v.blobs.Read(j.srcID, sess)
			if err != nil {
				return err
			}
			id, err := v.blobs.Write(data, sess, "")
			if err != nil {
				return err
			}
			j.target.BlobID = id
			mu.Lock()
			written = append(written, id)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		v.releaseBlobs(written)
		return nil, err
	}
	return clone, nil
}

// OrphanBlobs lists blobs that exist on disk but are not referenced by any
// file node. Orphans accumulate from aborted operations; they are reported
// here and reclaimed only by an explicit delete, never automatically. The
// tree must be resident, so the vault cannot be Locked.
func (v *Vault) OrphanBlobs() ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.status == domain.StatusLocked {
		return nil, apperr.New(apperr.CodeLocked, "vault is locked")
	}

	stored, err := v.blobs.List()
	if err != nil {
		return nil, err
	}

	live := make(map[string]struct{})
	for _, id := range collectBlobIDs(v.state.Root, nil) {
		live[id] = struct{}{}
	}

	var orphans []string
	for _, id := range stored {
		if _, ok := live[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}

// releaseBlobs deletes blobs best-effort. Failures leak a blob; they are
// logged and never turned into operation errors.
func (v *Vault) releaseBlobs(ids []string) {
	for _, id := range ids {
		if err := v.blobs.Delete(id); err != nil {
			v.logger.Warn("blob release failed", "id", id, "err", err)
		}
	}
}

// pathWithin reports whether inner equals outer or is nested below it.
func pathWithin(outer, inner []string) bool {
	if len(inner) < len(outer) {
		return false
	}
	for i := range outer {
		if inner[i] != outer[i] {
			return false
		}
	}
	return true
}
