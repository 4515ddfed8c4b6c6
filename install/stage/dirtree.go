package stage

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type dirnode map[string]dirnode

// DirTree tracks which directories under a base path are known to exist,
// so ghost cleanup can find directories that might have become empty
// without re-reading the filesystem for every candidate. Teacher:
// installer/bfs/dirtree.go.
type DirTree struct {
	basePath string
	root     dirnode
}

func NewDirTree(basePath string) *DirTree {
	return &DirTree{basePath: basePath, root: make(dirnode)}
}

// EnsureParents makes sure all parent directories of filePath exist.
func (dt *DirTree) EnsureParents(filePath string) error {
	dirPath := path.Dir(filePath)
	if dt.hasPath(dirPath) {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(dt.basePath, filepath.FromSlash(dirPath)), 0o755); err != nil {
		return errors.Wrap(err, "ensuring parent directories")
	}
	dt.commitPath(dirPath)
	return nil
}

// CommitFiles records that filePaths (and their parent directories) are
// known to the tree, without creating anything on disk.
func (dt *DirTree) CommitFiles(filePaths []string) {
	for _, filePath := range filePaths {
		dt.commitPath(path.Dir(filePath))
	}
}

// ListRelativeDirs returns every directory in the tree, relative to the
// base path, depth first (children before parents) so callers can safely
// attempt removal in order.
func (dt *DirTree) ListRelativeDirs() []string {
	var res []string
	var walk func(name string, node dirnode)
	walk = func(name string, node dirnode) {
		for childName, childNode := range node {
			walk(path.Join(name, childName), childNode)
		}
		res = append(res, name)
	}
	walk(".", dt.root)
	return res
}

func (dt *DirTree) split(dirPath string) []string {
	return strings.Split(path.Clean(dirPath), "/")
}

func (dt *DirTree) hasPath(dirPath string) bool {
	node := dt.root
	for _, token := range dt.split(dirPath) {
		next, ok := node[token]
		if !ok {
			return false
		}
		node = next
	}
	return true
}

func (dt *DirTree) commitPath(dirPath string) {
	if dirPath == "." {
		return
	}
	node := dt.root
	for _, token := range dt.split(dirPath) {
		next, ok := node[token]
		if !ok {
			next = make(dirnode)
			node[token] = next
		}
		node = next
	}
}
