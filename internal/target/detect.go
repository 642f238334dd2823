package target

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kouak/tracecli/internal/model"
	"github.com/kouak/tracecli/internal/store"
)

// maxWalkDepth bounds how many directories deep the embedded-identifier
// scan descends below the project root before giving up.
const maxWalkDepth = 8

// maxScannedFileSize skips anything larger than this; identifier literals
// live in small config/source files, never build artifacts.
const maxScannedFileSize = 1 << 20 // 1 MiB

// skipDirs are never descended into: they are either VCS/dependency
// internals or large enough to make the scan pointless.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".hg": true,
	".svn": true, "dist": true, "build": true, "target": true,
	".venv": true, "venv": true, "__pycache__": true,
}

// rootMarkers identify a project root: version-control or language
// manifest files that stop the upward walk from findProjectRoot and the
// downward scan from recursing past sibling projects.
var rootMarkers = []string{
	".git", "go.mod", "package.json", "Cargo.toml", "pyproject.toml",
	"setup.py", "pom.xml", "Gemfile", "composer.json",
}

// dsnURLRe matches a full DSN URL: scheme, a 32-hex-char public key as
// userinfo, a host, and a numeric project id path segment.
var dsnURLRe = regexp.MustCompile(`https?://([a-f0-9]{32})@([a-zA-Z0-9.\-]+)(?::\d+)?/(\d+)`)

// dsnOrgHostRe extracts a numeric org id from a region-style ingest host
// (o<orgID>.ingest.<...>), the shape that lets an identifier resolve by
// (org id, project id) rather than by public key alone.
var dsnOrgHostRe = regexp.MustCompile(`^o(\d+)\.ingest\.`)

// barePublicKeyRe matches the public-key-only shape: a standalone 32-hex
// token with no surrounding URL, as some SDKs accept on their own.
var barePublicKeyRe = regexp.MustCompile(`\b[a-f0-9]{32}\b`)

// identifier is one detected embedded identifier, tagged with whatever it
// carries so resolveIdentifier knows which lookup to use.
type identifier struct {
	raw       string
	publicKey string
	orgID     string
	projectID string
}

// findProjectRoot walks upward from start looking for a root marker,
// bounded by maxWalkDepth; it returns start unchanged if none is found.
func findProjectRoot(start string) string {
	dir := start
	for i := 0; i < maxWalkDepth; i++ {
		for _, m := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return start
}

// detectEmbedded implements §4.4 step 4: scan the working tree for
// embedded identifier literals, resolve each to a Target, and report.
// Unresolvable identifiers (e.g. a self-hosted instance whose project no
// longer exists) are counted, not treated as an error.
func (r *Resolver) detectEmbedded(ctx context.Context) (model.TargetResolution, bool, error) {
	root := findProjectRoot(r.projectRoot)

	if cached, ok, err := r.loadCachedResolution(ctx, root); err != nil {
		return model.TargetResolution{}, false, err
	} else if ok {
		return cached, len(cached.Targets) > 0, nil
	}

	ids := scanIdentifiers(root)
	ids = append(ids, envIdentifiers()...)
	ids = dedupIdentifiers(ids)
	if len(ids) == 0 {
		return model.TargetResolution{}, false, nil
	}

	var targets []model.Target
	skipped := 0
	for _, id := range ids {
		t, ok, err := r.resolveIdentifier(ctx, id)
		if err != nil {
			return model.TargetResolution{}, false, err
		}
		if !ok {
			skipped++
			continue
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return model.TargetResolution{SkippedSelfHosted: skipped}, false, nil
	}

	res := buildResolution(targets)
	res.SkippedSelfHosted = skipped
	r.cacheResolution(ctx, root, res)
	return res, true, nil
}

// resolveIdentifier looks an identifier up: by (org id, project id) when
// the DSN host embedded an org id, otherwise by public key alone, which
// dsn_cache (C1) spares from a full all-orgs/all-projects key scan once
// the key has resolved once before.
func (r *Resolver) resolveIdentifier(ctx context.Context, id identifier) (model.Target, bool, error) {
	if id.orgID != "" && id.projectID != "" {
		return r.api.LookupProjectByOrgID(ctx, id.orgID, id.projectID)
	}

	if org, project, ok, err := r.store.LookupDSN(ctx, id.publicKey); err != nil {
		return model.Target{}, false, err
	} else if ok {
		return model.Target{Org: org, Project: project}, true, nil
	}

	t, ok, err := r.api.LookupProjectByPublicKey(ctx, id.publicKey)
	if err != nil || !ok {
		return t, ok, err
	}
	_ = r.store.SetDSN(ctx, t.Org, t.Project, id.publicKey)
	return t, true, nil
}

// scanIdentifiers walks root bounded by maxWalkDepth, reading source
// files and ".env"-prefixed dotfiles for identifier literals.
func scanIdentifiers(root string) []identifier {
	var out []identifier
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // a permission error on one entry shouldn't abort the scan
		}
		if info.IsDir() {
			if path != root && skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
			if depth > maxWalkDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !isScannable(info) {
			return nil
		}
		out = append(out, scanFile(path)...)
		return nil
	})
	return out
}

func isScannable(info os.FileInfo) bool {
	if info.Size() > maxScannedFileSize {
		return false
	}
	name := info.Name()
	if strings.HasPrefix(name, ".env") {
		return true
	}
	switch filepath.Ext(name) {
	case ".go", ".js", ".ts", ".jsx", ".tsx", ".py", ".rb", ".java", ".php",
		".env", ".yaml", ".yml", ".json", ".toml", ".ini", ".cfg", ".properties":
		return true
	}
	return false
}

func scanFile(path string) []identifier {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	data, err := io.ReadAll(bufio.NewReader(io.LimitReader(f, maxScannedFileSize)))
	if err != nil {
		return nil
	}
	return extractIdentifiers(string(data))
}

func envIdentifiers() []identifier {
	var out []identifier
	for _, kv := range os.Environ() {
		out = append(out, extractIdentifiers(kv)...)
	}
	return out
}

func extractIdentifiers(text string) []identifier {
	var out []identifier
	seenRaw := map[string]bool{}

	for _, m := range dsnURLRe.FindAllStringSubmatch(text, -1) {
		raw, key, host, projectID := m[0], m[1], m[2], m[3]
		if seenRaw[raw] {
			continue
		}
		seenRaw[raw] = true
		id := identifier{raw: raw, publicKey: key, projectID: projectID}
		if hm := dsnOrgHostRe.FindStringSubmatch(host); hm != nil {
			id.orgID = hm[1]
		}
		out = append(out, id)
	}

	for _, m := range barePublicKeyRe.FindAllString(text, -1) {
		if seenRaw[m] {
			continue
		}
		// A bare key that was already captured as part of a full DSN URL
		// match above is not a second, independent identifier.
		partOfURL := false
		for _, prior := range out {
			if prior.publicKey == m {
				partOfURL = true
				break
			}
		}
		if partOfURL {
			continue
		}
		seenRaw[m] = true
		out = append(out, identifier{raw: m, publicKey: m})
	}

	return out
}

func dedupIdentifiers(ids []identifier) []identifier {
	seen := map[string]bool{}
	var out []identifier
	for _, id := range ids {
		key := id.publicKey + "\x00" + id.orgID + "\x00" + id.projectID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}

// loadCachedResolution returns a previously resolved target set for root.
// An entry is dropped when root's mtime has moved past the recorded one,
// or when that recorded mtime is more than 24h old; the 24h window counts
// from the directory's last modification, not from when the entry was
// written, so a root left untouched for a day is always rescanned. Only a
// single-target cache hit is trusted: the persisted cache table has one
// (org, project) slot per path, so a prior multi-identifier resolution is
// always rescanned rather than partially served from cache.
func (r *Resolver) loadCachedResolution(ctx context.Context, root string) (model.TargetResolution, bool, error) {
	entry, ok, err := r.store.ProjectRootCache(ctx, root)
	if err != nil || !ok {
		return model.TargetResolution{}, false, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return model.TargetResolution{}, false, nil
	}
	if info.ModTime().After(entry.Mtime) {
		return model.TargetResolution{}, false, nil
	}
	if time.Since(entry.Mtime) > 24*time.Hour {
		return model.TargetResolution{}, false, nil
	}
	return buildResolution([]model.Target{{Org: entry.Org, Project: entry.Project}}), true, nil
}

// cacheResolution stores a single-target resolution's (org, project) under
// root for the fast path on the next invocation. Multi-target resolutions
// are not cached, matching loadCachedResolution's single-slot contract.
func (r *Resolver) cacheResolution(ctx context.Context, root string, res model.TargetResolution) {
	if len(res.Targets) != 1 {
		return
	}
	info, err := os.Stat(root)
	if err != nil {
		return
	}
	_ = r.store.SetProjectRootCache(ctx, root, store.ProjectRootCacheEntry{
		Org:     res.Targets[0].Org,
		Project: res.Targets[0].Project,
		Mtime:   info.ModTime(),
	})
}
