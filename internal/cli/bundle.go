package cli

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Upload is the single file sent to the server for one "put".
type Upload struct {
	Filename string
	Data     []byte
	// Files is the number of local files in the upload.
	Files int
	// Zipped reports whether the files were bundled into an archive.
	Zipped bool
}

// Bundle turns the parsed paths into one upload. A single regular file is
// sent as-is; a directory or several paths are zipped into
// "<root name>.zip". Multiple paths are grouped under a root named after now.
func Bundle(paths []ParsedPath, now time.Time) (*Upload, error) {
	if len(paths) == 1 && paths[0].Kind == PathFile {
		data, err := os.ReadFile(paths[0].FullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", paths[0].FullPath, err)
		}
		return &Upload{
			Filename: filepath.Base(paths[0].FullPath),
			Data:     data,
			Files:    1,
		}, nil
	}

	ft, err := BuildFiletree(paths, fmt.Sprintf("upload_%s", now.Format("2006_01_02_150405")))
	if err != nil {
		return nil, err
	}

	data, err := ft.ToZipBytes()
	if err != nil {
		return nil, err
	}

	return &Upload{
		Filename: ft.Root.Name() + ".zip",
		Data:     data,
		Files:    len(ft.FlattenTree()),
		Zipped:   true,
	}, nil
}

// ToZipBytes archives the tree. Entry names are rooted at the tree root and
// always use forward slashes.
func (ft *Filetree) ToZipBytes() ([]byte, error) {
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	if err := compressNode(zipWriter, ft.Root, ""); err != nil {
		zipWriter.Close()
		return nil, err
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}

	return buf.Bytes(), nil
}

func compressNode(zw *zip.Writer, node Node, basePath string) error {
	archivePath := path.Join(basePath, node.Name())

	switch n := node.(type) {
	case *File:
		return addFileToZip(zw, n.Path(), archivePath)
	case *Dir:
		if len(n.Children()) == 0 {
			// Keep empty directories in the archive.
			_, err := zw.Create(archivePath + "/")
			return err
		}
		for _, child := range n.Children() {
			if err := compressNode(zw, child, archivePath); err != nil {
				return err
			}
		}
	}
	return nil
}

func addFileToZip(zw *zip.Writer, srcPath, archivePath string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", srcPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = archivePath
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}

	return nil
}
