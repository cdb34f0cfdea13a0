package hub

import (
	"os"
	"path/filepath"
	"strings"
)

// The cache follows huggingface_hub's layout: refs/<revision> holds the
// commit a branch or tag resolved to and snapshots/<commit>/ holds the
// files. Files are stored directly in the snapshot rather than linked from
// blobs/.

// DefaultCacheDir mirrors huggingface_hub: HF_HUB_CACHE, then $HF_HOME/hub,
// then $XDG_CACHE_HOME/huggingface/hub, then ~/.cache/huggingface/hub.
func DefaultCacheDir() string {
	if dir := os.Getenv("HF_HUB_CACHE"); dir != "" {
		return dir
	}
	if home := os.Getenv("HF_HOME"); home != "" {
		return filepath.Join(home, "hub")
	}
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".cache")
		} else {
			base = filepath.Join(os.TempDir(), "cache")
		}
	}
	return filepath.Join(base, "huggingface", "hub")
}

// repoDir returns the cache directory for repo, e.g. models--owner--name.
func repoDir(cacheDir, repo string) string {
	return filepath.Join(cacheDir, "models--"+strings.ReplaceAll(repo, "/", "--"))
}

// snapshotPath returns where name is stored for repo at commit.
func snapshotPath(cacheDir, repo, commit, name string) string {
	return filepath.Join(repoDir(cacheDir, repo), "snapshots", commit, filepath.FromSlash(name))
}

// refPath returns the file recording which commit rev pointed at, e.g.
// models--owner--name/refs/main.
func refPath(cacheDir, repo, rev string) string {
	return filepath.Join(repoDir(cacheDir, repo), "refs", filepath.FromSlash(rev))
}

// readRef returns the commit recorded for rev, or "" when none is.
//
// A recorded ref is pinned: files already in its snapshot are served
// without asking the hub whether the branch has moved. Removing the ref
// file makes the next download record the current commit.
func readRef(cacheDir, repo, rev string) string {
	data, err := os.ReadFile(refPath(cacheDir, repo, rev))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeRef(cacheDir, repo, rev, commit string) error {
	return writeAtomic(refPath(cacheDir, repo, rev), strings.NewReader(commit))
}
