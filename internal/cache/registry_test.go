package cache

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRegistryBuildsBothBehaviors(t *testing.T) {
	base := t.TempDir()
	registry, err := NewRegistry(RegistryOptions{
		PurgeableRoot:  filepath.Join(base, "caches"),
		PersistentRoot: filepath.Join(base, "support"),
		Store:          Options{Logger: quietLogger()},
	})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	defer registry.Close()

	purgeable, ok := registry.Store(BehaviorPurgeable)
	if !ok {
		t.Fatalf("expected purgeable store")
	}
	persistent, ok := registry.Store(BehaviorPersistent)
	if !ok {
		t.Fatalf("expected persistent store")
	}

	purgeable.Put("https://example.com/a", []byte("a"), 200, nil)
	if _, ok := persistent.Get("https://example.com/a"); ok {
		t.Fatalf("stores must not share entries")
	}

	if got := registry.Behaviors(); len(got) != 2 || got[0] != BehaviorPersistent {
		t.Fatalf("unexpected behaviors: %v", got)
	}
	if registry.Root(BehaviorPurgeable) != filepath.Join(base, "caches") {
		t.Fatalf("unexpected purgeable root: %s", registry.Root(BehaviorPurgeable))
	}
}

func TestRegistryRejectsSharedDirectory(t *testing.T) {
	root := t.TempDir()
	_, err := NewRegistry(RegistryOptions{
		PurgeableRoot:  root,
		PersistentRoot: root,
		Store:          Options{Logger: quietLogger()},
	})
	if !errors.Is(err, ErrDirectoryInUse) {
		t.Fatalf("expected ErrDirectoryInUse, got %v", err)
	}

	// the purgeable store created before the failure must have been released
	store, err := NewStore(root, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("directory should be released after failed registry: %v", err)
	}
	store.Close()
}

func TestRegistrySkipsEmptyRoots(t *testing.T) {
	registry, err := NewRegistry(RegistryOptions{
		PersistentRoot: t.TempDir(),
		Store:          Options{Logger: quietLogger()},
	})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	defer registry.Close()

	if _, ok := registry.Store(BehaviorPurgeable); ok {
		t.Fatalf("purgeable store should be disabled")
	}

	if _, err := NewRegistry(RegistryOptions{}); err == nil {
		t.Fatalf("registry without roots should fail")
	}
}

func TestParseBehavior(t *testing.T) {
	if b, err := ParseBehavior(" Persistent "); err != nil || b != BehaviorPersistent {
		t.Fatalf("unexpected result %q %v", b, err)
	}
	if _, err := ParseBehavior("memory"); err == nil {
		t.Fatalf("expected error for unknown behavior")
	}
}
