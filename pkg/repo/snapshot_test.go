package repo

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/odvcencio/gotarchive/pkg/object"
)

// initRepoWithFiles creates a repository whose working directory holds the
// given files (slash-separated relative paths).
func initRepoWithFiles(t *testing.T, files map[string]string) (*Repo, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for rel, content := range files {
		writeFile(t, filepath.Join(dir, filepath.FromSlash(rel)), content)
	}
	return r, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func snapshot(t *testing.T, r *Repo, dir, message string) object.Hash {
	t.Helper()
	h, err := r.Snapshot(dir, SnapshotOptions{Author: "test-author", Message: message})
	if err != nil {
		t.Fatalf("Snapshot(%s): %v", message, err)
	}
	return h
}

func treeEntries(t *testing.T, r *Repo, h object.Hash) map[string]object.TreeEntry {
	t.Helper()
	tr, err := r.Store.ReadTree(h)
	if err != nil {
		t.Fatalf("ReadTree(%s): %v", h, err)
	}
	out := make(map[string]object.TreeEntry, len(tr.Entries))
	for _, e := range tr.Entries {
		out[e.Name] = e
	}
	return out
}

func TestSnapshotRecordsModesAndLinks(t *testing.T) {
	r, work := initRepoWithFiles(t, map[string]string{
		"README.md":    "# readme\n",
		"bin/tool":     "#!/bin/sh\n",
		"src/main.go":  "package main\n",
		"src/util.go":  "package main\n",
		"empty/.keep2": "",
	})
	if err := os.Remove(filepath.Join(work, "empty", ".keep2")); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(filepath.Join(work, "bin", "tool"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("README.md", filepath.Join(work, "link")); err != nil {
		t.Fatal(err)
	}

	when := time.Unix(1700000000, 0)
	h, err := r.Snapshot(work, SnapshotOptions{Author: "A U Thor <a@example.com>", Message: "snap\n", When: when})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if c.Timestamp != when.Unix() || c.Author != "A U Thor <a@example.com>" || len(c.Parents) != 0 {
		t.Fatalf("commit = %+v", c)
	}

	root, err := r.Store.ReadTree(c.TreeHash)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	var names []string
	for _, e := range root.Entries {
		names = append(names, e.Name)
	}
	if !reflect.DeepEqual(names, []string{"README.md", "bin", "link", "src"}) {
		t.Fatalf("root entries = %v", names)
	}

	entries := treeEntries(t, r, c.TreeHash)
	if entries["README.md"].Mode != object.TreeModeFile {
		t.Fatalf("README.md mode = %s", entries["README.md"].Mode)
	}
	if entries["link"].Mode != object.TreeModeSymlink {
		t.Fatalf("link mode = %s", entries["link"].Mode)
	}
	target, err := r.Store.ReadBlob(entries["link"].Hash)
	if err != nil || string(target.Data) != "README.md" {
		t.Fatalf("link target = %v, %v", target, err)
	}
	bin := treeEntries(t, r, entries["bin"].Hash)
	if bin["tool"].Mode != object.TreeModeExecutable {
		t.Fatalf("bin/tool mode = %s", bin["tool"].Mode)
	}
}

func TestSnapshotAdvancesBranchWithParent(t *testing.T) {
	r, work := initRepoWithFiles(t, map[string]string{"a.txt": "one\n"})
	first := snapshot(t, r, work, "first")

	writeFile(t, filepath.Join(work, "a.txt"), "two\n")
	second := snapshot(t, r, work, "second")

	head, err := r.ResolveRef("HEAD")
	if err != nil || head != second {
		t.Fatalf("HEAD = %s, %v; want %s", head, err, second)
	}
	c, err := r.Store.ReadCommit(second)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if !reflect.DeepEqual(c.Parents, []object.Hash{first}) {
		t.Fatalf("parents = %v, want [%s]", c.Parents, first)
	}
}

func TestSnapshotDetachedHead(t *testing.T) {
	r, work := initRepoWithFiles(t, map[string]string{"a.txt": "one\n"})
	first := snapshot(t, r, work, "first")
	if err := os.WriteFile(filepath.Join(r.GotDir, "HEAD"), []byte(string(first)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(work, "b.txt"), "b\n")
	second := snapshot(t, r, work, "detached")

	head, err := r.Head()
	if err != nil || object.Hash(head) != second {
		t.Fatalf("HEAD = %q, %v; want %s", head, err, second)
	}
	mainHash, err := r.ResolveRef("main")
	if err != nil || mainHash != first {
		t.Fatalf("main = %s, %v; branch should not move", mainHash, err)
	}
}

func TestSnapshotEmptyDirectory(t *testing.T) {
	r, work := initRepoWithFiles(t, nil)
	h := snapshot(t, r, work, "empty")

	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	tr, err := r.Store.ReadTree(c.TreeHash)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(tr.Entries) != 0 {
		t.Fatalf("entries = %v, want none", tr.Entries)
	}
}

func TestSnapshotNestedRepositoryBecomesGitlink(t *testing.T) {
	r, work := initRepoWithFiles(t, map[string]string{"main.go": "package main\n"})

	nestedDir := filepath.Join(work, "vendor", "lib")
	nested, err := Init(nestedDir)
	if err != nil {
		t.Fatalf("Init nested: %v", err)
	}
	writeFile(t, filepath.Join(nestedDir, "lib.go"), "package lib\n")
	nestedHead := snapshot(t, nested, nestedDir, "nested")

	unborn := filepath.Join(work, "unborn")
	if _, err := Init(unborn); err != nil {
		t.Fatalf("Init unborn: %v", err)
	}
	writeFile(t, filepath.Join(unborn, "x.go"), "package x\n")

	h := snapshot(t, r, work, "outer")
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	root := treeEntries(t, r, c.TreeHash)
	if _, ok := root["unborn"]; ok {
		t.Fatal("repository without commits should be skipped")
	}
	vendor := treeEntries(t, r, root["vendor"].Hash)
	lib := vendor["lib"]
	if lib.Mode != object.TreeModeGitlink || lib.Hash != nestedHead {
		t.Fatalf("vendor/lib = %+v, want gitlink to %s", lib, nestedHead)
	}
}

func TestSnapshotSigner(t *testing.T) {
	r, work := initRepoWithFiles(t, map[string]string{"a.txt": "a\n"})
	var signed []byte
	h, err := r.Snapshot(work, SnapshotOptions{
		Author:  "signer",
		Message: "signed",
		Signer: func(payload []byte) (string, error) {
			signed = payload
			return "test-signature", nil
		},
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if c.Signature != "test-signature" {
		t.Fatalf("signature = %q", c.Signature)
	}
	if string(signed) != string(object.CommitSigningPayload(c)) {
		t.Fatal("signer did not receive the canonical signing payload")
	}
}
