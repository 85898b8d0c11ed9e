package handshake

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// wildcardPattern matches any of the glob metacharacters this
// handshake refuses in a peer-supplied source name (spec §4.6 step
// 7, testable property 2). Globbing itself is explicitly out of
// scope (spec §1 Non-goals); any of these characters in a name is
// therefore rejected outright rather than expanded.
var wildcardPattern = regexp.MustCompile(`[\[*?]`)

// containsWildcard reports whether name contains a glob metacharacter.
func containsWildcard(name string) bool {
	return wildcardPattern.MatchString(name)
}

// resolveUnderRoot resolves a peer-supplied relative path against a
// module's (already absolute, canonical) root, and verifies the
// result stays lexically and physically under that root: no ".."
// escape after normalization, and no symlink inside the module tree
// that points outside it (spec §4.5). Built on path/filepath and
// component-by-component filepath.EvalSymlinks walking rather than
// any ecosystem path-jail library:
// none of the pack's dependencies (landlock, toml, text/encoding,
// go-cmp, uuid) address in-process lexical path confinement, so this
// stays on the standard library; Landlock (internal/restrict) adds an
// independent OS-level layer underneath it, not a replacement for it.
func resolveUnderRoot(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty path")
	}
	joined := filepath.Join(root, name)
	clean := filepath.Clean(joined)
	if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes module root", name)
	}
	resolved, err := evalSymlinksWithinRoot(root, clean)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// evalSymlinksWithinRoot resolves symlinks component by component,
// starting from root, so a symlink anywhere under root that points
// outside it is caught even when the target doesn't exist yet (which
// filepath.EvalSymlinks alone cannot do for to-be-created receiver
// destinations).
func evalSymlinksWithinRoot(root, clean string) (string, error) {
	rel, err := filepath.Rel(root, clean)
	if err != nil {
		return "", fmt.Errorf("path %q not relative to root: %w", clean, err)
	}
	if rel == "." {
		return root, nil
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		// The module root itself not existing is a configuration
		// error the registry should have caught; treat conservatively.
		resolvedRoot = root
	}

	cur := resolvedRoot
	parts := strings.Split(rel, string(filepath.Separator))
	for i, part := range parts {
		cur = filepath.Join(cur, part)
		target, err := filepath.EvalSymlinks(cur)
		if err != nil {
			// Final component may not exist yet (a receiver
			// destination being created): only the existing prefix
			// must be checked for escape.
			if i == len(parts)-1 {
				break
			}
			return "", fmt.Errorf("path %q: %w", rel, err)
		}
		if target != resolvedRoot && !strings.HasPrefix(target, resolvedRoot+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q escapes module root via symlink", rel)
		}
		cur = target
	}
	return filepath.Join(resolvedRoot, rel), nil
}
