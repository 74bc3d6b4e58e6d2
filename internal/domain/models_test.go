package domain

import (
	"testing"
	"time"
)

func TestDefaultVaultState(t *testing.T) {
	now := time.Now()
	state := DefaultVaultState(now)

	if !state.Root.IsDir() {
		t.Fatal("Root must be a directory")
	}
	if state.HomeDir != DefaultHomeDir {
		t.Errorf("HomeDir = %q, want %q", state.HomeDir, DefaultHomeDir)
	}

	home, ok := state.Root.Children["home"]
	if !ok {
		t.Fatal("Default tree must contain /home")
	}
	if !home.IsDir() {
		t.Error("/home must be a directory")
	}
	if len(home.Children) != 0 {
		t.Error("/home must start empty")
	}
	if len(state.Root.Children) != 1 {
		t.Errorf("Root should hold exactly the home directory, got %d children", len(state.Root.Children))
	}
}

func TestNodeConstructors(t *testing.T) {
	now := time.Now()

	file := NewFileNode("blob-1", 42, now)
	if file.IsDir() {
		t.Error("File node must not report as directory")
	}
	if file.BlobID != "blob-1" || file.Size != 42 {
		t.Error("File node did not keep blob reference")
	}
	if !file.Created.Equal(now) || !file.Modified.Equal(now) {
		t.Error("File timestamps not set")
	}

	dir := NewDirectoryNode(now)
	if !dir.IsDir() {
		t.Error("Directory node must report as directory")
	}
	if dir.Children == nil {
		t.Error("Directory children map must be allocated")
	}

	var nilNode *Node
	if nilNode.IsDir() {
		t.Error("nil node must not report as directory")
	}
}

func TestChannelKindValid(t *testing.T) {
	for _, k := range []ChannelKind{ChannelEmail, ChannelPush, ChannelSMS, ChannelTelegram} {
		if !k.Valid() {
			t.Errorf("Kind %q should be valid", k)
		}
	}
	if ChannelKind("pigeon").Valid() {
		t.Error("Unknown kind should be invalid")
	}
}
