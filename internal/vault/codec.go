package vault

import (
	"bytes"
	"encoding/binary"
	"sort"
	"time"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/domain"
)

// Binary state format, little-endian:
//
//	version(1) | home_len(4) | home | node
//
// where node is
//
//	kind(1) | created(8) | modified(8) |
//	  file:      id_len(4) | id | size(8)
//	  directory: child_count(4) | { name_len(4) | name | node }...
//
// Children are written in name order so equal trees encode identically.
const stateVersion = 1

const (
	maxNameLen    = 4096
	maxChildCount = 1 << 20
	maxTreeDepth  = 512
)

// EncodeVaultState packs a tree for encryption.
func EncodeVaultState(state *domain.VaultState) ([]byte, error) {
	if state == nil || !state.Root.IsDir() {
		return nil, apperr.New(apperr.CodeSerialization, "state root must be a directory")
	}

	var buf bytes.Buffer
	buf.WriteByte(stateVersion)
	if err := writeCheckedString(&buf, state.HomeDir); err != nil {
		return nil, err
	}
	if err := encodeNode(&buf, state.Root, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeVaultState unpacks a tree produced by EncodeVaultState. Any
// truncated or inconsistent input is rejected.
func DecodeVaultState(data []byte) (*domain.VaultState, error) {
	r := &stateReader{data: data}

	version, err := r.byte()
	if err != nil {
		return nil, err
	}
	if version != stateVersion {
		return nil, apperr.Newf(apperr.CodeSerialization, "unsupported state version %d", version)
	}

	home, err := r.str()
	if err != nil {
		return nil, err
	}

	root, err := decodeNode(r, 0)
	if err != nil {
		return nil, err
	}
	if !root.IsDir() {
		return nil, apperr.New(apperr.CodeSerialization, "state root must be a directory")
	}
	if r.offset != len(r.data) {
		return nil, apperr.Newf(apperr.CodeSerialization, "trailing %d bytes after state", len(r.data)-r.offset)
	}

	return &domain.VaultState{Root: root, HomeDir: home}, nil
}

// encodeNode enforces the same limits the decoder does, so nothing this
// function accepts can later fail to decode.
func encodeNode(buf *bytes.Buffer, n *domain.Node, depth int) error {
	if depth > maxTreeDepth {
		return apperr.New(apperr.CodeSerialization, "tree nesting too deep")
	}

	buf.WriteByte(byte(n.Kind))
	writeInt64(buf, n.Created.UnixNano())
	writeInt64(buf, n.Modified.UnixNano())

	switch n.Kind {
	case domain.KindFile:
		if err := writeCheckedString(buf, n.BlobID); err != nil {
			return err
		}
		writeInt64(buf, n.Size)
		return nil

	case domain.KindDirectory:
		if len(n.Children) > maxChildCount {
			return apperr.Newf(apperr.CodeSerialization, "directory too large: %d children", len(n.Children))
		}

		names := make([]string, 0, len(n.Children))
		for name := range n.Children {
			names = append(names, name)
		}
		sort.Strings(names)

		writeUint32(buf, uint32(len(names)))
		for _, name := range names {
			if err := writeCheckedString(buf, name); err != nil {
				return err
			}
			if err := encodeNode(buf, n.Children[name], depth+1); err != nil {
				return err
			}
		}
		return nil

	default:
		return apperr.Newf(apperr.CodeSerialization, "unknown node kind %d", n.Kind)
	}
}

func decodeNode(r *stateReader, depth int) (*domain.Node, error) {
	if depth > maxTreeDepth {
		return nil, apperr.New(apperr.CodeSerialization, "tree nesting too deep")
	}

	kind, err := r.byte()
	if err != nil {
		return nil, err
	}

	created, err := r.int64()
	if err != nil {
		return nil, err
	}
	modified, err := r.int64()
	if err != nil {
		return nil, err
	}

	switch domain.NodeKind(kind) {
	case domain.KindFile:
		id, err := r.str()
		if err != nil {
			return nil, err
		}
		size, err := r.int64()
		if err != nil {
			return nil, err
		}
		return &domain.Node{
			Kind:     domain.KindFile,
			BlobID:   id,
			Size:     size,
			Created:  time.Unix(0, created),
			Modified: time.Unix(0, modified),
		}, nil

	case domain.KindDirectory:
		count, err := r.uint32()
		if err != nil {
			return nil, err
		}
		if count > maxChildCount {
			return nil, apperr.Newf(apperr.CodeSerialization, "directory too large: %d children", count)
		}

		children := make(map[string]*domain.Node, count)
		for i := uint32(0); i < count; i++ {
			name, err := r.str()
			if err != nil {
				return nil, err
			}
			if _, dup := children[name]; dup {
				return nil, apperr.Newf(apperr.CodeSerialization, "duplicate child name %q", name)
			}
			child, err := decodeNode(r, depth+1)
			if err != nil {
				return nil, err
			}
			children[name] = child
		}
		return &domain.Node{
			Kind:     domain.KindDirectory,
			Children: children,
			Created:  time.Unix(0, created),
			Modified: time.Unix(0, modified),
		}, nil

	default:
		return nil, apperr.Newf(apperr.CodeSerialization, "unknown node kind %d", kind)
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeCheckedString(buf *bytes.Buffer, s string) error {
	if len(s) > maxNameLen {
		return apperr.Newf(apperr.CodeSerialization, "string too long: %d bytes", len(s))
	}
	writeString(buf, s)
	return nil
}

// stateReader walks the packed bytes with bounds checks on every read.
type stateReader struct {
	data   []byte
	offset int
}

var errTruncated = apperr.New(apperr.CodeSerialization, "truncated vault state")

func (r *stateReader) byte() (byte, error) {
	if r.offset+1 > len(r.data) {
		return 0, errTruncated
	}
	b := r.data[r.offset]
	r.offset++
	return b, nil
}

func (r *stateReader) uint32() (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset : r.offset+4])
	r.offset += 4
	return v, nil
}

func (r *stateReader) int64() (int64, error) {
	if r.offset+8 > len(r.data) {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint64(r.data[r.offset : r.offset+8])
	r.offset += 8
	return int64(v), nil
}

func (r *stateReader) str() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	if n > maxNameLen {
		return "", apperr.Newf(apperr.CodeSerialization, "string too long: %d bytes", n)
	}
	if r.offset+int(n) > len(r.data) {
		return "", errTruncated
	}
	s := string(r.data[r.offset : r.offset+int(n)])
	r.offset += int(n)
	return s, nil
}
