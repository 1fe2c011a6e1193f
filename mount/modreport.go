//go:build linux

package mount

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ModuleProp is the parsed subset of a module's module.prop file relevant to
// status reporting.
//
// Supplemental: original_source carries a module.prop rewriter that appends
// a one-line mount-result glyph to a module's description so a module
// manager's UI surfaces last-mount outcome without a separate API; spec.md's
// distillation drops this, but nothing in its Non-goals excludes it.
type ModuleProp struct {
	ID          string
	Name        string
	Description string
}

// ReadModuleProp parses key=value lines out of path, skipping blank lines
// and lines starting with '#'.
func ReadModuleProp(path string) (ModuleProp, error) {
	f, err := os.Open(path)
	if err != nil {
		return ModuleProp{}, errors.Wrapf(err, "open %q", path)
	}
	defer f.Close()

	prop := ModuleProp{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		switch strings.TrimSpace(key) {
		case "id":
			prop.ID = strings.TrimSpace(value)
		case "name":
			prop.Name = strings.TrimSpace(value)
		case "description":
			prop.Description = strings.TrimSpace(value)
		}
	}

	if err := scanner.Err(); err != nil {
		return ModuleProp{}, errors.Wrapf(err, "read %q", path)
	}

	return prop, nil
}

// glyphMounted and glyphFailed are the status glyphs AnnotateDescription
// puts in front of a module's description, the way a module manager app
// renders mount health at a glance.
const (
	glyphMounted = "😊" // happy face: module's files are live
	glyphFailed  = "😢" // sad face: module failed to mount
)

// AnnotateDescription rewrites description to lead with a mount-status
// glyph, replacing any glyph left by a previous run.
func AnnotateDescription(description string, mounted bool) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(description, glyphMounted), glyphFailed)
	trimmed = strings.TrimSpace(trimmed)

	glyph := glyphFailed
	if mounted {
		glyph = glyphMounted
	}

	return glyph + " " + trimmed
}

// WriteModuleProp rewrites path's description= line in place, preserving
// every other line and its original order.
func WriteModuleProp(path string, mounted bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %q", path)
	}

	lines := strings.Split(string(data), "\n")

	for i, line := range lines {
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != "description" {
			continue
		}

		lines[i] = "description=" + AnnotateDescription(strings.TrimSpace(value), mounted)
	}

	return errors.Wrapf(
		os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644),
		"write %q", path,
	)
}

// ContributesToPartition reports whether modulePath's partition subtree
// (modulePath/partition) contains at least one regular file, symlink, or
// non-empty subtree, per spec.md's module-contribution rule. A missing
// partition subdirectory is not an error: it simply means the module does
// not contribute to that partition.
func ContributesToPartition(modulePath, partition string) (bool, error) {
	root := filepath.Join(modulePath, partition)

	contributes := false

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}

			return err
		}

		if !entry.IsDir() {
			contributes = true
			return filepath.SkipAll
		}

		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "walk %q", root)
	}

	return contributes, nil
}

// ScanModules reads module.prop for every immediate subdirectory of
// modulesRoot that contains one, returning the parsed set. Directories
// without a module.prop (e.g. a module mid-removal) are skipped rather than
// treated as an error.
//
// Supplemental: mirrors original_source's module directory scan, used here
// by cmd/hymount's "modules" subcommand to list what BuildTrie will consider
// before a mount run. Each entry is classified with GetFileTypeFast (one
// lstat) and only directories are checked for a module.prop.
func ScanModules(modulesRoot string) ([]ModuleProp, error) {
	entries, err := os.ReadDir(modulesRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "read modules root %q", modulesRoot)
	}

	var modules []ModuleProp

	for _, entry := range entries {
		dirPath := filepath.Join(modulesRoot, entry.Name())

		if GetFileTypeFast(dirPath).ToNodeKind() != NodeDir {
			continue
		}

		propPath := filepath.Join(dirPath, "module.prop")

		prop, err := ReadModuleProp(propPath)
		if err != nil {
			continue
		}

		if prop.ID == "" {
			prop.ID = entry.Name()
		}

		modules = append(modules, prop)
	}

	return modules, nil
}
