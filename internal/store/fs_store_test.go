package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

func createTestProfile(kernel string, global ...int) *Profile {
	local := make([]int, len(global))
	for i := range local {
		local[i] = 1
	}
	return &Profile{
		Device:       "host cpu",
		Kernel:       kernel,
		Global:       global,
		Local:        local,
		Baseline:     local,
		Mean:         2 * time.Millisecond,
		BaselineMean: 3 * time.Millisecond,
		Candidates:   12,
		Timestamp:    time.Now(),
	}
}

func TestNewFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if _, err := NewFSStore(dir); err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("Base directory was not created: %v", err)
	}
}

func TestSaveAndLoadProfile(t *testing.T) {
	store, tempDir := setupTestStore(t)
	p := createTestProfile("renderMandelbrot", 40, 32)
	p.Local = []int{8, 4}

	if err := store.SaveProfile(p); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	expected := filepath.Join(tempDir, "profiles", "host-cpu_renderMandelbrot_40x32.json")
	if _, err := os.Stat(expected); err != nil {
		t.Fatalf("Profile file was not created at %s", expected)
	}
	if _, err := os.Stat(expected + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file was left behind")
	}

	loaded, err := store.LoadProfile(p.Key())
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if loaded.Kernel != p.Kernel || loaded.Mean != p.Mean || !loaded.Timestamp.Equal(p.Timestamp) {
		t.Errorf("Loaded %+v, want %+v", loaded, p)
	}
	if len(loaded.Local) != 2 || loaded.Local[0] != 8 || loaded.Local[1] != 4 {
		t.Errorf("Local = %v", loaded.Local)
	}
}

func TestSaveProfileOverwrites(t *testing.T) {
	store, _ := setupTestStore(t)

	first := createTestProfile("vectorAddKernel", 64)
	if err := store.SaveProfile(first); err != nil {
		t.Fatal(err)
	}
	second := createTestProfile("vectorAddKernel", 64)
	second.Local = []int{16}
	if err := store.SaveProfile(second); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadProfile(first.Key())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Local[0] != 16 {
		t.Errorf("Expected the second profile, got local %v", loaded.Local)
	}
}

func TestSaveProfileRejectsInvalid(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveProfile(nil); err == nil {
		t.Error("Expected error for nil profile")
	}

	p := createTestProfile("vectorAddKernel", 64)
	p.Local = []int{7}
	var ve *ValidationError
	if err := store.SaveProfile(p); !errors.As(err, &ve) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestLoadProfileNotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadProfile("absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Key != "absent" {
		t.Errorf("Expected key in error, got %v", err)
	}
}

func TestLoadProfileCorrupted(t *testing.T) {
	store, tempDir := setupTestStore(t)
	dir := filepath.Join(tempDir, "profiles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.LoadProfile("bad"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected deserialization error, got %v", err)
	}

	// Listing skips the corrupted file.
	if err := store.SaveProfile(createTestProfile("scaleKernel", 8)); err != nil {
		t.Fatal(err)
	}
	profiles, err := store.ListProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 {
		t.Errorf("Expected 1 profile, got %d", len(profiles))
	}
}

func TestListProfiles(t *testing.T) {
	store, _ := setupTestStore(t)

	profiles, err := store.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles on empty store: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("Expected no profiles, got %d", len(profiles))
	}

	for _, p := range []*Profile{
		createTestProfile("vectorAddKernel", 64),
		createTestProfile("renderMandelbrot", 40, 32),
		createTestProfile("accumulateKernel", 6),
	} {
		if err := store.SaveProfile(p); err != nil {
			t.Fatal(err)
		}
	}

	profiles, err = store.ListProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 3 {
		t.Fatalf("Expected 3 profiles, got %d", len(profiles))
	}
	for i := 1; i < len(profiles); i++ {
		if profiles[i-1].Key() > profiles[i].Key() {
			t.Errorf("Profiles not sorted: %s before %s", profiles[i-1].Key(), profiles[i].Key())
		}
	}
}

func TestDeleteProfile(t *testing.T) {
	store, _ := setupTestStore(t)
	p := createTestProfile("vectorAddKernel", 64)
	if err := store.SaveProfile(p); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteProfile(p.Key()); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}
	if _, err := store.LoadProfile(p.Key()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteProfile(p.Key()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if err := store.DeleteProfile(""); err == nil {
		t.Error("Expected error for empty key")
	}
}

func TestConcurrentSaves(t *testing.T) {
	store, _ := setupTestStore(t)

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := store.SaveProfile(createTestProfile("scaleKernel", n*4)); err != nil {
				t.Errorf("SaveProfile %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	profiles, err := store.ListProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 8 {
		t.Errorf("Expected 8 profiles, got %d", len(profiles))
	}
}
