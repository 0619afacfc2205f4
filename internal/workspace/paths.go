package workspace

import (
	"errors"
	"path"
	"strings"
)

// Errors returned by NormalizePath for inputs that can never name a
// workspace document.
var (
	ErrEmptyPath    = errors.New("workspace: empty path")
	ErrPathEscapes  = errors.New("workspace: path escapes workspace root")
	ErrPathEncoding = errors.New("workspace: path contains forbidden bytes")
	ErrWindowsPath  = errors.New("workspace: windows-style path")
)

// IdentityFiles are the documents only writable through the identity API,
// never through the generic write tool.
var IdentityFiles = map[string]bool{
	"AGENTS.md":    true,
	"SOUL.md":      true,
	"USER.md":      true,
	"IDENTITY.md":  true,
	"MEMORY.md":    true,
	"HEARTBEAT.md": true,
	"README.md":    true,
}

// IdentityDirs are path prefixes with the same write protection as
// IdentityFiles.
var IdentityDirs = []string{"daily/", "context/"}

// IsIdentityPath reports whether a normalized path is part of the agent's
// identity surface (root identity files, daily logs, context documents).
func IsIdentityPath(p string) bool {
	if IdentityFiles[p] {
		return true
	}
	for _, dir := range IdentityDirs {
		if strings.HasPrefix(p, dir) {
			return true
		}
	}
	return false
}

// NormalizePath canonicalizes a virtual document path: leading and trailing
// slashes are stripped, duplicate slashes collapse, "." and ".." segments
// resolve. Inputs that cannot resolve to a key inside the workspace are
// rejected: null bytes, percent-encoded dot-dot, Windows drive letters or
// backslashes, and any ".." that would climb above the root.
func NormalizePath(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrPathEncoding
	}
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%2e.") || strings.Contains(lower, ".%2e") {
		return "", ErrPathEncoding
	}
	if strings.ContainsRune(raw, '\\') {
		return "", ErrWindowsPath
	}
	if len(raw) >= 2 && raw[1] == ':' && isDriveLetter(raw[0]) {
		return "", ErrWindowsPath
	}

	cleaned := path.Clean(strings.TrimLeft(raw, "/"))
	// Clean resolves every ".." it can against earlier segments; one that
	// survives at the front means the input tried to climb above the root.
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrPathEscapes
	}
	cleaned = strings.TrimSuffix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrEmptyPath
	}
	return cleaned, nil
}

// ValidateSandboxPath applies the stricter rules host functions use for
// module-supplied paths: everything NormalizePath rejects, plus absolute
// paths and any ".." segment at all, resolvable or not.
func ValidateSandboxPath(raw string) (string, error) {
	if strings.HasPrefix(raw, "/") {
		return "", ErrPathEscapes
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", ErrPathEscapes
		}
	}
	return NormalizePath(raw)
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
