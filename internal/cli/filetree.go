package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

type Node interface {
	Path() string
	Name() string
}

type File struct {
	path string
	name string
	size int64
}

type Dir struct {
	path     string
	name     string
	children []Node
}

func (f *File) Path() string { return f.path }
func (f *File) Name() string { return f.name }
func (f *File) Size() int64  { return f.size }

func (d *Dir) Path() string     { return d.path }
func (d *Dir) Name() string     { return d.name }
func (d *Dir) Children() []Node { return d.children }

// Filetree is the set of local paths bundled into one upload.
type Filetree struct {
	Root Node
}

// BuildFiletree walks the parsed paths. A single path becomes the root
// itself; several paths are grouped under a virtual directory named
// rootName, which has no path on disk.
func BuildFiletree(paths []ParsedPath, rootName string) (*Filetree, error) {
	var rootNodes []Node

	for _, parsedPath := range paths {
		if parsedPath.Kind == PathDir {
			dirNode, err := buildDirTree(parsedPath.FullPath)
			if err != nil {
				return nil, err
			}
			rootNodes = append(rootNodes, dirNode)
			continue
		}

		info, err := os.Stat(parsedPath.FullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", parsedPath.FullPath, err)
		}
		rootNodes = append(rootNodes, &File{
			path: parsedPath.FullPath,
			name: filepath.Base(parsedPath.FullPath),
			size: info.Size(),
		})
	}

	if len(rootNodes) == 0 {
		return nil, fmt.Errorf("no valid paths provided")
	}

	if len(rootNodes) == 1 {
		return &Filetree{Root: rootNodes[0]}, nil
	}
	return &Filetree{Root: &Dir{name: rootName, children: rootNodes}}, nil
}

func buildDirTree(dirPath string) (*Dir, error) {
	dir := &Dir{
		path:     dirPath,
		name:     filepath.Base(dirPath),
		children: []Node{},
	}

	// os.ReadDir returns entries sorted by name, which keeps archives stable.
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dirPath, err)
	}

	for _, entry := range entries {
		childPath := filepath.Join(dirPath, entry.Name())

		switch {
		case entry.IsDir():
			childDir, err := buildDirTree(childPath)
			if err != nil {
				return nil, err
			}
			dir.children = append(dir.children, childDir)
		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", childPath, err)
			}
			dir.children = append(dir.children, &File{
				path: childPath,
				name: entry.Name(),
				size: info.Size(),
			})
		}
		// Symlinks, sockets and devices are skipped.
	}

	return dir, nil
}

// FlattenTree returns every file in the tree in depth-first order.
func (ft *Filetree) FlattenTree() []*File {
	var files []*File
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *File:
			files = append(files, n)
		case *Dir:
			for _, child := range n.children {
				walk(child)
			}
		}
	}
	walk(ft.Root)
	return files
}

// UncompressedSize sums the sizes of all files in the tree.
func (ft *Filetree) UncompressedSize() int64 {
	var total int64
	for _, f := range ft.FlattenTree() {
		total += f.size
	}
	return total
}
