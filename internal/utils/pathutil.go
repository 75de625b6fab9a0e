package utils

import (
	"path"
	"path/filepath"
	"strings"
)

// NormalizePath converts a workspace path to its canonical form: forward
// slashes, cleaned, absolute within the virtual root. Returns "" for paths
// that collapse to nothing.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = path.Clean(p)
	if p == "/" || p == "." {
		return ""
	}
	return p
}

// Ancestors returns every ancestor directory of a normalized path, nearest
// root first. "/src/a/b.ts" yields ["/src", "/src/a"].
func Ancestors(p string) []string {
	p = NormalizePath(p)
	if p == "" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	cur := ""
	for _, part := range parts[:len(parts)-1] {
		cur = cur + "/" + part
		out = append(out, cur)
	}
	return out
}

// IsDescendant reports whether child lives under dir (both normalized).
func IsDescendant(dir, child string) bool {
	dir = NormalizePath(dir)
	child = NormalizePath(child)
	if dir == "" || child == "" {
		return false
	}
	return strings.HasPrefix(child, dir+"/")
}
