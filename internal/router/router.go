// Package router implements spec.md §4.4: longest-prefix match over a
// server's local and redirect routes, including filesystem resolution and
// CGI interpreter selection. Grounded on original_source/source/routing.cpp
// for the exact short-circuit and tie-break semantics.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package router

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/nvaistore/webs3rv/internal/config"
)

type Status int

const (
	NotFound Status = iota
	NoAccess
	FoundLocal
	FoundRedirect
)

type NodeType int

const (
	NodeRegular NodeType = iota
	NodeDirectory
)

// Info is spec.md §3's "Routing info": a tagged variant (local, redirect)
// carrying a back-reference to the matching config node, per spec.md §9's
// design note (modeled as pointers into the config arrays rather than the
// original's `void *` + kind tag).
type Info struct {
	Status Status

	// valid when Status == FoundLocal
	NodePath      string
	NodeType      NodeType
	CGIInterp     string // "" if the matched extension has no CGI mapping
	LocalRoute    *config.LocalRoute

	// valid when Status == FoundRedirect
	RedirectRoute *config.RedirectRoute
}

// Router resolves (server, path) to routing verdicts. It holds no cache:
// original_source/source/routing.cpp always stats fresh, and a per-server
// route slice is small enough that a linear scan plus stat(2) on every
// candidate is cheap. A negative cache here would go stale the moment
// internal/session writes or deletes a file under the matching route
// (uploads, DELETE) without the router ever finding out, turning a stale
// hit into a permanent phantom 404 — not worth it for the stat(2) calls
// it would save.
type Router struct{}

func New() *Router {
	return &Router{}
}

// FindRoute implements spec.md §4.4's algorithm against one server's routes.
func (r *Router) FindRoute(server *config.Server, queryPath string) Info {
	info := Info{Status: NotFound}
	bestLength := 0

	for i := range server.LocalRoutes {
		route := &server.LocalRoutes[i]
		if bestLength >= len(route.Path) {
			continue
		}
		if !strings.HasPrefix(queryPath, route.Path) {
			continue
		}

		tail := strings.Trim(queryPath[len(route.Path):], "/")
		fsPath := route.RootDir + "/" + tail

		nodeType, accessErr, exists := statNode(fsPath)
		if !exists {
			continue
		}
		if accessErr {
			return Info{Status: NoAccess}
		}

		bestLength = len(route.Path)
		info = Info{
			Status:     FoundLocal,
			NodePath:   fsPath,
			NodeType:   nodeType,
			LocalRoute: route,
		}
		for ext, interp := range route.CGITypes {
			if strings.HasSuffix(queryPath, "."+ext) {
				info.CGIInterp = interp
				break
			}
		}
	}

	for i := range server.RedirectRoutes {
		route := &server.RedirectRoutes[i]
		if bestLength >= len(route.Path) {
			continue
		}
		if !strings.HasPrefix(queryPath, route.Path) {
			continue
		}
		bestLength = len(route.Path)
		info = Info{Status: FoundRedirect, RedirectRoute: route}
	}

	return info
}

// MatchPrefix resolves the longest-prefix local route for queryPath without
// touching the filesystem, using the same tie-break rule as FindRoute. It
// exists for POST-upload and DELETE targets, where the destination path
// legitimately does not exist yet (upload body writing to disk is an
// external collaborator per spec.md §1, but something still has to pick
// which configured route a not-yet-existing upload target belongs to).
func (r *Router) MatchPrefix(server *config.Server, queryPath string) *config.LocalRoute {
	var best *config.LocalRoute
	bestLength := 0
	for i := range server.LocalRoutes {
		route := &server.LocalRoutes[i]
		if bestLength >= len(route.Path) {
			continue
		}
		if !strings.HasPrefix(queryPath, route.Path) {
			continue
		}
		bestLength = len(route.Path)
		best = route
	}
	return best
}

// statNode reports the resolved node's type, whether it exists, and whether
// it is inaccessible/unsupported (a permission error from stat, a node the
// server may not read, or neither a regular file nor a directory — sockets,
// devices, etc. per spec.md §4.4 step c). Any other stat failure, a symlink
// loop included, counts as the node not existing.
func statNode(path string) (nodeType NodeType, accessErr bool, exists bool) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsPermission(err) {
			return 0, true, true
		}
		return 0, false, false
	}
	switch {
	case fi.Mode().IsRegular():
		nodeType = NodeRegular
	case fi.IsDir():
		nodeType = NodeDirectory
	default:
		return 0, true, true
	}
	if unix.Access(path, unix.R_OK) != nil {
		return 0, true, true
	}
	return nodeType, false, true
}
