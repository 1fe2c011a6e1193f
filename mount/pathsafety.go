//go:build linux

package mount

import (
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// forbiddenSymlinkPrefixes are absolute symlink targets treated as
// sensitive: a module-contributed symlink must never resolve into one of
// these roots.
var forbiddenSymlinkPrefixes = []string{"/data/", "/dev/", "/proc/", "/sys/"}

// maxSymlinkChaseDepth bounds the symlink chain IsSafeSymlink will follow
// before declaring the link unsafe (cycle or pathological depth).
const maxSymlinkChaseDepth = 20

// IsSafePath reports whether target, once canonicalised, lies within base
// (equal to base or base followed by a path separator). Canonicalisation
// failure is treated as unsafe.
func IsSafePath(base, target string) bool {
	canonicalBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return false
	}

	canonicalTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		return false
	}

	canonicalBase = filepath.Clean(canonicalBase)
	canonicalTarget = filepath.Clean(canonicalTarget)

	if canonicalTarget == canonicalBase {
		return true
	}

	return strings.HasPrefix(canonicalTarget, canonicalBase+string(filepath.Separator))
}

// IsSafeSymlink validates that link is either not a symlink, or a symlink
// whose chain never names an absolute target under a forbidden root, never
// takes a relative hop out of base, and never exceeds maxSymlinkChaseDepth
// hops (a cheap cycle guard). Absolute targets outside the forbidden roots
// are accepted even when they lie outside base.
//
// Relative link targets are resolved against the directory of the link that
// holds them; a target whose ".." components would climb out of base is
// rejected, and the rest is resolved within base using securejoin.
func IsSafeSymlink(link, base string) bool {
	info, err := os.Lstat(link)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return true
	}

	current := link

	for depth := 0; depth < maxSymlinkChaseDepth; depth++ {
		target, err := os.Readlink(current)
		if err != nil {
			return false
		}

		if filepath.IsAbs(target) {
			for _, prefix := range forbiddenSymlinkPrefixes {
				if strings.HasPrefix(target, prefix) {
					return false
				}
			}

			current = target
		} else {
			relDir, err := filepath.Rel(base, filepath.Dir(current))
			if err != nil || relDir == ".." || strings.HasPrefix(relDir, ".."+string(filepath.Separator)) {
				return false
			}

			// Detect an escape attempt before resolving: SecureJoin clamps
			// ".." at base rather than erroring, which would otherwise turn
			// "../../etc/passwd" into a dangling (and therefore falsely
			// "safe") path instead of a rejection.
			joined := filepath.Clean(filepath.Join(relDir, target))
			if joined == ".." || strings.HasPrefix(joined, ".."+string(filepath.Separator)) {
				return false
			}

			resolved, err := securejoin.SecureJoin(base, joined)
			if err != nil {
				return false
			}

			current = resolved
		}

		fi, err := os.Lstat(current)
		if err != nil {
			// Dangling symlink: not itself unsafe, just a no-op mount later.
			return true
		}

		if fi.Mode()&os.ModeSymlink == 0 {
			return true
		}
	}

	return false
}
