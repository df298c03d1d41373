package static

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestListDirSortsDirectoriesFirstThenLexical(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "b.txt"), "b")
	mustWrite(t, filepath.Join(dir, "a.txt"), "a")
	if err := os.Mkdir(filepath.Join(dir, "zsub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	entries, err := ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].IsDir || entries[0].Name != "zsub" {
		t.Fatalf("expected directory first, got %+v", entries[0])
	}
	if entries[1].Name != "a.txt" || entries[2].Name != "b.txt" {
		t.Fatalf("expected lexical file order, got %+v then %+v", entries[1], entries[2])
	}
}

func TestRenderHTMLEscapesNames(t *testing.T) {
	out := RenderHTML("/docs/", []Entry{{Name: "<script>.txt"}})
	html := string(out)
	if strings.Contains(html, "<script>.txt") {
		t.Fatal("expected entry name to be HTML-escaped")
	}
	if !strings.Contains(html, "&lt;script&gt;.txt") {
		t.Fatalf("expected escaped entry name in output, got %s", html)
	}
}

func TestRenderHTMLOmitsParentLinkAtRoot(t *testing.T) {
	out := RenderHTML("/", nil)
	if strings.Contains(string(out), `href="../"`) {
		t.Fatal("root listing must not include a parent-directory link")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
