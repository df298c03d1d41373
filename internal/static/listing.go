// Package static supplies the directory-listing renderer spec.md §1 places
// out of scope as an external collaborator ("directory listing
// rendering"); a runnable server still needs one, so this is built in the
// teacher's plain-struct, no-surprises style and backed by
// github.com/karrick/godirwalk (teacher dep, otherwise unused once
// aistore's own filesystem-walking code is trimmed) for the single-level
// directory scan instead of os.ReadDir.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package static

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
)

// Entry is one row of a rendered listing.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// ListDir returns dirPath's immediate children, directories first then
// files, both lexically sorted.
func ListDir(dirPath string) ([]Entry, error) {
	children, err := godirwalk.ReadDirents(dirPath, nil)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(children))
	for _, c := range children {
		entries = append(entries, Entry{Name: c.Name(), IsDir: c.IsDir()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// RenderHTML produces a minimal autoindex page, the way a server with no
// templating dependency in its stack would: a fixed string builder, not a
// html/template pipeline (there is no untrusted user content beyond file
// names, which are escaped).
func RenderHTML(requestPath string, entries []Entry) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>Index of %s</title></head><body>\n", html.EscapeString(requestPath))
	fmt.Fprintf(&b, "<h1>Index of %s</h1><ul>\n", html.EscapeString(requestPath))
	if requestPath != "/" {
		b.WriteString(`<li><a href="../">../</a></li>` + "\n")
	}
	for _, e := range entries {
		name := e.Name
		if e.IsDir {
			name += "/"
		}
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", html.EscapeString(name), html.EscapeString(name))
	}
	b.WriteString("</ul></body></html>\n")
	return []byte(b.String())
}
