package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFilesEqual(t *testing.T) {
	tmp := t.TempDir()

	a := filepath.Join(tmp, "a")
	b := filepath.Join(tmp, "b")
	c := filepath.Join(tmp, "c")
	d := filepath.Join(tmp, "d")
	writeFile(t, a, "same content\n")
	writeFile(t, b, "same content\n")
	writeFile(t, c, "other content\n")
	writeFile(t, d, "short\n")

	tests := []struct {
		name  string
		x, y  string
		equal bool
	}{
		{"identical", a, b, true},
		{"same size different bytes", a, c, false},
		{"different size", a, d, false},
		{"self", a, a, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := filesEqual(tt.x, tt.y)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.equal {
				t.Errorf("filesEqual(%s, %s) = %v, want %v", tt.x, tt.y, got, tt.equal)
			}
		})
	}

	if _, err := filesEqual(a, filepath.Join(tmp, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCopyFilePreservesMode(t *testing.T) {
	tmp := t.TempDir()

	src := filepath.Join(tmp, "src.sh")
	dst := filepath.Join(tmp, "nested", "dir", "dst.sh")
	writeFile(t, src, "#!/bin/sh\n")
	if err := os.Chmod(src, 0755); err != nil {
		t.Fatal(err)
	}

	if err := copyFile(src, dst); err != nil {
		t.Fatalf("copyFile: %v", err)
	}

	if got := readFile(t, dst); got != "#!/bin/sh\n" {
		t.Errorf("unexpected content %q", got)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("expected mode 0755, got %v", info.Mode().Perm())
	}

	// No temp files left behind next to the destination.
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(dst), ".hostsyncd-tmp-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestCopyDir(t *testing.T) {
	tmp := t.TempDir()

	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")
	writeFile(t, filepath.Join(src, "logo.svg"), "<svg/>")
	writeFile(t, filepath.Join(src, "deep", "nested", "icon.png"), "png")
	if err := os.Symlink("logo.svg", filepath.Join(src, "link.svg")); err != nil {
		t.Fatal(err)
	}

	if err := copyDir(src, dst); err != nil {
		t.Fatalf("copyDir: %v", err)
	}

	if got := readFile(t, filepath.Join(dst, "logo.svg")); got != "<svg/>" {
		t.Errorf("unexpected content %q", got)
	}
	if got := readFile(t, filepath.Join(dst, "deep", "nested", "icon.png")); got != "png" {
		t.Errorf("unexpected nested content %q", got)
	}
	target, err := os.Readlink(filepath.Join(dst, "link.svg"))
	if err != nil {
		t.Fatalf("expected symlink to be recreated: %v", err)
	}
	if target != "logo.svg" {
		t.Errorf("expected symlink target logo.svg, got %s", target)
	}
}

func TestBackupPathFor(t *testing.T) {
	tmp := t.TempDir()
	dest := filepath.Join(tmp, "app.cfg")
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	first := backupPathFor(dest, now)
	if !strings.HasSuffix(first, ".bak-20240315-103000") {
		t.Fatalf("unexpected backup path %s", first)
	}

	// Same second, same destination: the suffix disambiguates.
	writeFile(t, first, "taken")
	second := backupPathFor(dest, now)
	if second != first+"-1" {
		t.Errorf("expected collision suffix -1, got %s", second)
	}
	writeFile(t, second, "taken too")
	third := backupPathFor(dest, now)
	if third != first+"-2" {
		t.Errorf("expected collision suffix -2, got %s", third)
	}
}

func TestFileExists(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "present")
	writeFile(t, path, "x")

	if !fileExists(path) {
		t.Error("expected regular file to exist")
	}
	if fileExists(filepath.Join(tmp, "absent")) {
		t.Error("expected missing path to not exist")
	}
	if fileExists(tmp) {
		t.Error("directories are not regular files")
	}
}
