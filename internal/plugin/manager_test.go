package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, root string, m Manifest) string {
	t.Helper()

	dir := filepath.Join(root, m.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return dir
}

func volumeManifest(name string) Manifest {
	return Manifest{
		Name:        name,
		Version:     "1.0.0",
		Description: "Sets the output volume",
		Executable:  name,
		Actions:     []string{ActionSetVolume},
	}
}

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	dir := writeManifest(t, root, volumeManifest("system-volume"))

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}

	p := plugins[0]
	if p.Manifest.Name != "system-volume" {
		t.Errorf("expected plugin name 'system-volume', got %q", p.Manifest.Name)
	}
	if p.Path != dir {
		t.Errorf("expected path %q, got %q", dir, p.Path)
	}
	if p.Executable != filepath.Join(dir, "system-volume") {
		t.Errorf("expected executable inside plugin dir, got %q", p.Executable)
	}
	if !p.Supports(ActionSetVolume) {
		t.Error("expected plugin to support set-volume")
	}
	if p.Supports(ActionGetVolume) {
		t.Error("plugin should not claim get-volume")
	}
}

func TestManager_Discover_SortedAndSkipsBroken(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, volumeManifest("zeta"))
	writeManifest(t, root, volumeManifest("alpha"))

	broken := filepath.Join(root, "broken")
	if err := os.MkdirAll(broken, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(broken, "plugin.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, root, Manifest{Name: "no-exec", Actions: []string{ActionSetVolume}})

	if err := os.MkdirAll(filepath.Join(root, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("not a plugin"), 0644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Manifest.Name != "alpha" || plugins[1].Manifest.Name != "zeta" {
		t.Errorf("expected [alpha zeta], got [%s %s]", plugins[0].Manifest.Name, plugins[1].Manifest.Name)
	}
}

func TestManager_Discover_RejectsEscapingExecutable(t *testing.T) {
	root := t.TempDir()
	m := volumeManifest("sneaky")
	m.Executable = "../../bin/sh"
	writeManifest(t, root, m)

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected plugin with an executable outside its directory to be skipped")
	}
}

func TestManager_Discover_DuplicateNames(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, volumeManifest("system-volume"))

	// A second directory claiming the same name.
	other := filepath.Join(root, "zz-copy")
	if err := os.MkdirAll(other, 0755); err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(volumeManifest("system-volume"))
	if err := os.WriteFile(filepath.Join(other, ManifestFile), data, 0644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}
	if plugins[0].Path != filepath.Join(root, "system-volume") {
		t.Errorf("expected the first directory to win, got %s", plugins[0].Path)
	}
}

func TestManager_Discover_MissingDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() should not fail for a missing dir: %v", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected no plugins")
	}
}

func TestManager_Get(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, volumeManifest("system-volume"))

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	if _, err := manager.Get("system-volume"); err != nil {
		t.Errorf("Get() failed: %v", err)
	}
	if _, err := manager.Get("missing"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestManager_Find(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, volumeManifest("system-volume"))
	writeManifest(t, root, Manifest{Name: "lights", Executable: "lights", Actions: []string{"dim"}})

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	if _, err := manager.Find("system-volume", ActionSetVolume); err != nil {
		t.Errorf("Find() failed: %v", err)
	}
	if _, err := manager.Find("lights", ActionSetVolume); err == nil {
		t.Error("expected error for plugin without set-volume")
	}
	if _, err := manager.Find("missing", ActionSetVolume); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestManager_PluginDir(t *testing.T) {
	manager := NewManager("/opt/mudra/plugins")
	if manager.PluginDir() != "/opt/mudra/plugins" {
		t.Errorf("PluginDir() = %q", manager.PluginDir())
	}
}
