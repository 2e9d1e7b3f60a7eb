package object

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTag    ObjectType = "tag"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
	TreeModeGitlink    = "160000"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TagObj is an annotated tag pointing at another object, usually a commit.
type TagObj struct {
	TargetHash Hash
	TargetType ObjectType
	Name       string
	Tagger     string
	Timestamp  int64
	Message    string
}

// TreeEntry is one entry in a tree object.
//
// Hash addresses a blob for files and symlinks, a subtree for directories,
// and a commit in a foreign repository for gitlinks. Gitlink targets are
// never present in this store.
type TreeEntry struct {
	Name string
	Mode string
	Hash Hash
}

// IsDir reports whether the entry is a subtree.
func (e TreeEntry) IsDir() bool { return e.Mode == TreeModeDir }

// IsGitlink reports whether the entry links to another repository's commit.
func (e TreeEntry) IsGitlink() bool { return e.Mode == TreeModeGitlink }

// IsSymlink reports whether the entry is a symbolic link whose blob holds
// the link target.
func (e TreeEntry) IsSymlink() bool { return e.Mode == TreeModeSymlink }

// TreeObj holds a list of tree entries in stored order.
type TreeObj struct {
	Entries []TreeEntry
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    string
	Timestamp int64 // authoring time, unix seconds
	Signature string
	Message   string
}
