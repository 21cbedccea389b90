package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type PathKind int

const (
	PathFile PathKind = iota
	PathDir
)

func (k PathKind) String() string {
	if k == PathDir {
		return "dir"
	}
	return "file"
}

type ParsedPath struct {
	FullPath string
	Kind     PathKind
}

// ParseArgs validates the paths given to "put". Every path must exist and be
// a regular file or a directory; the same path may not appear twice.
func ParseArgs(args []string) ([]ParsedPath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<paths>", Cause: "no files provided"}
	}

	var out []ParsedPath
	seen := make(map[string]bool, len(args))

	for _, raw := range args {
		if raw == "" {
			return nil, &ValidationError{Arg: raw, Cause: "empty path"}
		}

		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		var kind PathKind
		switch {
		case info.IsDir():
			kind = PathDir
		case info.Mode().IsRegular():
			kind = PathFile
		default:
			return nil, &ValidationError{Arg: raw, Cause: "not a regular file or directory"}
		}

		if seen[p] {
			return nil, &ValidationError{Arg: raw, Cause: "given more than once"}
		}
		seen[p] = true

		out = append(out, ParsedPath{FullPath: p, Kind: kind})
	}

	return out, nil
}
