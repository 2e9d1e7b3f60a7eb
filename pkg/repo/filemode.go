package repo

import (
	"io/fs"

	"github.com/odvcencio/gotarchive/pkg/object"
)

// modeFromFileInfo maps a filesystem entry to a tree mode. ok is false for
// entries a snapshot does not record (devices, sockets, pipes).
func modeFromFileInfo(info fs.FileInfo) (mode string, ok bool) {
	switch m := info.Mode(); {
	case m&fs.ModeSymlink != 0:
		return object.TreeModeSymlink, true
	case m.IsDir():
		return object.TreeModeDir, true
	case m.IsRegular():
		if m&0o111 != 0 {
			return object.TreeModeExecutable, true
		}
		return object.TreeModeFile, true
	default:
		return "", false
	}
}
