package vault

import (
	"sort"
	"strings"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/domain"
)

// Separator is the virtual path separator. Names inside a directory must
// never contain it.
const Separator = "/"

// splitPath validates a virtual path and returns its components. The root
// path "/" yields no components.
func splitPath(path string) ([]string, error) {
	if path == "" || !strings.HasPrefix(path, Separator) {
		return nil, apperr.Newf(apperr.CodeInvalidPath, "path %q must be absolute", path)
	}

	trimmed := strings.Trim(path, Separator)
	if trimmed == "" {
		return nil, nil
	}

	parts := strings.Split(trimmed, Separator)
	if len(parts) > maxTreeDepth {
		return nil, apperr.Newf(apperr.CodeInvalidPath, "path nesting exceeds %d levels", maxTreeDepth)
	}
	for _, part := range parts {
		if err := validateName(part); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// validateName rejects names that cannot live inside a directory.
func validateName(name string) error {
	if name == "" {
		return apperr.New(apperr.CodeInvalidPath, "name cannot be empty")
	}
	if len(name) > maxNameLen {
		return apperr.Newf(apperr.CodeInvalidPath, "name is too long: %d bytes", len(name))
	}
	if name == "." || name == ".." {
		return apperr.Newf(apperr.CodeInvalidPath, "name %q is reserved", name)
	}
	if strings.Contains(name, Separator) {
		return apperr.Newf(apperr.CodeInvalidPath, "name %q contains the path separator", name)
	}
	return nil
}

// joinPath builds a display path from components.
func joinPath(parts ...string) string {
	if len(parts) == 0 {
		return Separator
	}
	return Separator + strings.Join(parts, Separator)
}

// resolveNode walks the tree from root. A missing final component is a
// not_found error; a non-directory met mid-walk is an invalid_path error.
func resolveNode(root *domain.Node, path string) (*domain.Node, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	node := root
	for i, part := range parts {
		if !node.IsDir() {
			return nil, apperr.Newf(apperr.CodeInvalidPath, "%s is not a directory", joinPath(parts[:i]...))
		}
		child, ok := node.Children[part]
		if !ok {
			return nil, apperr.Newf(apperr.CodeNotFound, "%s not found", joinPath(parts[:i+1]...))
		}
		node = child
	}
	return node, nil
}

// resolveDir resolves a path that must be a directory.
func resolveDir(root *domain.Node, path string) (*domain.Node, error) {
	node, err := resolveNode(root, path)
	if err != nil {
		return nil, err
	}
	if !node.IsDir() {
		return nil, apperr.Newf(apperr.CodeInvalidPath, "%s is not a directory", path)
	}
	return node, nil
}

// resolveParent resolves the directory containing the path's final
// component. The root itself has no parent.
func resolveParent(root *domain.Node, path string) (parent *domain.Node, name string, err error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, "", err
	}
	if len(parts) == 0 {
		return nil, "", apperr.New(apperr.CodeInvalidPath, "the root directory has no parent")
	}

	dir, err := resolveDir(root, joinPath(parts[:len(parts)-1]...))
	if err != nil {
		return nil, "", err
	}
	return dir, parts[len(parts)-1], nil
}

// collectBlobIDs gathers every blob referenced under a subtree.
func collectBlobIDs(node *domain.Node, ids []string) []string {
	if node == nil {
		return ids
	}
	if node.Kind == domain.KindFile {
		if node.BlobID != "" {
			ids = append(ids, node.BlobID)
		}
		return ids
	}
	for _, child := range node.Children {
		ids = collectBlobIDs(child, ids)
	}
	return ids
}

// nodeInfo builds the read-only view of a node.
func nodeInfo(name, path string, n *domain.Node) domain.NodeInfo {
	info := domain.NodeInfo{
		Name:     name,
		Path:     path,
		IsDir:    n.IsDir(),
		Created:  n.Created,
		Modified: n.Modified,
	}
	if n.Kind == domain.KindFile {
		info.Size = n.Size
		info.BlobID = n.BlobID
	}
	return info
}

// childNames returns a directory's child names in sorted order.
func childNames(dir *domain.Node) []string {
	names := make([]string, 0, len(dir.Children))
	for name := range dir.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// childPath appends a name to a directory path.
func childPath(dirPath, name string) string {
	if dirPath == Separator {
		return Separator + name
	}
	return dirPath + Separator + name
}
