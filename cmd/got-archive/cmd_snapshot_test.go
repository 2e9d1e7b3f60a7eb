package main

import (
	"path/filepath"
	"regexp"
	"testing"
)

func TestSnapshotCmd(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := runCmd(t, "init", dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	writeTestFile(t, filepath.Join(dir, "main.go"), "package main\n")

	if _, _, err := runCmd(t, "snapshot", "-C", dir); err == nil {
		t.Fatal("snapshot without a message should fail")
	}

	out, _, err := runCmd(t, "snapshot", "-C", dir, "-m", "first snapshot", "--author", "tester")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !regexp.MustCompile(`^\[main [0-9a-f]{12}\] first snapshot\n$`).MatchString(out) {
		t.Fatalf("snapshot output = %q", out)
	}

	sub := filepath.Join(dir, "site")
	writeTestFile(t, filepath.Join(sub, "index.html"), "<html></html>\n")
	if _, _, err := runCmd(t, "snapshot", "-C", dir, "-m", "site only", sub); err != nil {
		t.Fatalf("snapshot of a subdirectory: %v", err)
	}
	out, _, err = runCmd(t, "ls-tree", "-C", dir)
	if err != nil {
		t.Fatalf("ls-tree: %v", err)
	}
	if out != "index.html\n" {
		t.Fatalf("ls-tree after subdirectory snapshot = %q", out)
	}
}
