package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvaistore/webs3rv/internal/config"
)

func mustWriteFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindRouteStaticFile(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, root, "index.html", "hello")

	srv := &config.Server{
		LocalRoutes: []config.LocalRoute{{Path: "/", RootDir: root}},
	}
	r := New()
	info := r.FindRoute(srv, "/index.html")
	if info.Status != FoundLocal {
		t.Fatalf("status = %v", info.Status)
	}
	if info.NodeType != NodeRegular {
		t.Fatalf("node type = %v", info.NodeType)
	}
	if info.NodePath != filepath.Join(root, "index.html") {
		t.Fatalf("node path = %q", info.NodePath)
	}
}

func TestFindRouteNotFound(t *testing.T) {
	root := t.TempDir()
	srv := &config.Server{LocalRoutes: []config.LocalRoute{{Path: "/", RootDir: root}}}
	info := New().FindRoute(srv, "/missing.html")
	if info.Status != NotFound {
		t.Fatalf("status = %v", info.Status)
	}
}

// TestFindRouteReflectsLateWrites guards against a regression where a
// router-level negative cache of confirmed-missing paths went stale the
// moment a file was written after an earlier miss: with no cache, a second
// FindRoute for the same path after the file appears on disk must find it.
func TestFindRouteReflectsLateWrites(t *testing.T) {
	root := t.TempDir()
	srv := &config.Server{LocalRoutes: []config.LocalRoute{{Path: "/u", RootDir: root}}}
	r := New()

	miss := r.FindRoute(srv, "/u/upload.txt")
	if miss.Status != NotFound {
		t.Fatalf("status before write = %v, want NotFound", miss.Status)
	}

	mustWriteFile(t, root, "upload.txt", "uploaded")

	hit := r.FindRoute(srv, "/u/upload.txt")
	if hit.Status != FoundLocal {
		t.Fatalf("status after write = %v, want FoundLocal", hit.Status)
	}
	if hit.NodePath != filepath.Join(root, "upload.txt") {
		t.Fatalf("node path = %q", hit.NodePath)
	}
}

func TestFindRouteNoAccessShortCircuits(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, root, "secret.html", "x")
	if err := os.Chmod(filepath.Join(root, "secret.html"), 0o000); err != nil {
		t.Skip("cannot chmod in this environment")
	}
	defer os.Chmod(filepath.Join(root, "secret.html"), 0o644)

	srv := &config.Server{
		LocalRoutes: []config.LocalRoute{
			{Path: "/", RootDir: root},
			{Path: "/a", RootDir: root}, // a "longer" but irrelevant alternative
		},
	}
	info := New().FindRoute(srv, "/secret.html")
	if info.Status != NoAccess {
		t.Fatalf("status = %v, want NoAccess", info.Status)
	}
}

func TestLongestPrefixWins(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "api"), 0o755)
	mustWriteFile(t, root, "api/data.json", "{}")

	srv := &config.Server{
		LocalRoutes: []config.LocalRoute{
			{Path: "/", RootDir: root},
			{Path: "/api", RootDir: filepath.Join(root, "api")},
		},
	}
	info := New().FindRoute(srv, "/api/data.json")
	if info.Status != FoundLocal {
		t.Fatalf("status = %v", info.Status)
	}
	if info.LocalRoute.Path != "/api" {
		t.Fatalf("matched route = %q, want /api", info.LocalRoute.Path)
	}
}

func TestTieBreakFavorsFirstConfiguredRoute(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	mustWriteFile(t, rootA, "x.html", "a")
	mustWriteFile(t, rootB, "x.html", "b")

	srv := &config.Server{
		LocalRoutes: []config.LocalRoute{
			{Path: "/p", RootDir: rootA},
			{Path: "/p", RootDir: rootB},
		},
	}
	info := New().FindRoute(srv, "/p/x.html")
	if info.NodePath != filepath.Join(rootA, "x.html") {
		t.Fatalf("expected first-configured route to win, got %q", info.NodePath)
	}
}

func TestRedirectLongestPrefix(t *testing.T) {
	root := t.TempDir()
	srv := &config.Server{
		LocalRoutes: []config.LocalRoute{{Path: "/", RootDir: root}},
		RedirectRoutes: []config.RedirectRoute{
			{Path: "/old", Target: "https://new/"},
		},
	}
	info := New().FindRoute(srv, "/old/page")
	if info.Status != FoundRedirect {
		t.Fatalf("status = %v", info.Status)
	}
	if info.RedirectRoute.Target != "https://new/" {
		t.Fatalf("target = %q", info.RedirectRoute.Target)
	}
}

func TestCGIExtensionSelection(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "cgi-bin"), 0o755)
	mustWriteFile(t, root, "cgi-bin/app.py", "#!/usr/bin/env python3\n")

	srv := &config.Server{
		LocalRoutes: []config.LocalRoute{
			{Path: "/cgi-bin", RootDir: filepath.Join(root, "cgi-bin"), CGITypes: map[string]string{"py": "/usr/bin/python3"}},
		},
	}
	info := New().FindRoute(srv, "/cgi-bin/app.py")
	if info.CGIInterp != "/usr/bin/python3" {
		t.Fatalf("interpreter = %q", info.CGIInterp)
	}
}

func TestDeterminismAcrossDeclarationOrderAmongDistinctLengths(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "a"), 0o755)
	mustWriteFile(t, root, "a/f.html", "x")

	srvOrderA := &config.Server{LocalRoutes: []config.LocalRoute{
		{Path: "/", RootDir: root},
		{Path: "/a", RootDir: filepath.Join(root, "a")},
	}}
	srvOrderB := &config.Server{LocalRoutes: []config.LocalRoute{
		{Path: "/a", RootDir: filepath.Join(root, "a")},
		{Path: "/", RootDir: root},
	}}
	infoA := New().FindRoute(srvOrderA, "/a/f.html")
	infoB := New().FindRoute(srvOrderB, "/a/f.html")
	if infoA.NodePath != infoB.NodePath {
		t.Fatalf("router is not order-independent among distinct-length routes: %q vs %q", infoA.NodePath, infoB.NodePath)
	}
}
