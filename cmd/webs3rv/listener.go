// Listener plumbing: one raw non-blocking listening socket per distinct
// (host, port) pair, subscribed to the dispatcher directly via
// golang.org/x/sys/unix rather than net.Listen, for the same reason
// internal/prochandle avoids os.Pipe — a net.Listener's fd is silently
// wired into the Go runtime's netpoller the moment it's touched, which
// would fight our own epoll loop for the same readiness events.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package main

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/nvaistore/webs3rv/internal/accesslog"
	"github.com/nvaistore/webs3rv/internal/config"
	"github.com/nvaistore/webs3rv/internal/cos"
	"github.com/nvaistore/webs3rv/internal/dispatcher"
	"github.com/nvaistore/webs3rv/internal/nlog"
	"github.com/nvaistore/webs3rv/internal/router"
	"github.com/nvaistore/webs3rv/internal/session"
	"github.com/nvaistore/webs3rv/internal/statsx"
	"github.com/nvaistore/webs3rv/internal/uploadlog"
)

type listener struct {
	disp    *dispatcher.Dispatcher
	fd      int
	servers []*config.Server
	rtr     *router.Router
	alog    *accesslog.Logger
	ledger  *uploadlog.Ledger
	metrics *statsx.Metrics
	loghdr  string
}

// bindListeners groups cfg's servers by listening address and opens one
// socket per group.
func bindListeners(disp *dispatcher.Dispatcher, cfg *config.Config, rtr *router.Router, alog *accesslog.Logger, ledger *uploadlog.Ledger, metrics *statsx.Metrics) ([]*listener, error) {
	groups := map[[6]byte][]*config.Server{}
	var order [][6]byte
	for i := range cfg.Servers {
		srv := &cfg.Servers[i]
		key := addrKey(srv.ListenHost, srv.ListenPort)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], srv)
	}

	listeners := make([]*listener, 0, len(order))
	for _, key := range order {
		servers := groups[key]
		l, err := newListener(disp, servers, rtr, alog, ledger, metrics)
		if err != nil {
			for _, opened := range listeners {
				opened.close()
			}
			return nil, err
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

func addrKey(host [4]byte, port uint16) [6]byte {
	return [6]byte{host[0], host[1], host[2], host[3], byte(port >> 8), byte(port)}
}

func newListener(disp *dispatcher.Dispatcher, servers []*config.Server, rtr *router.Router, alog *accesslog.Logger, ledger *uploadlog.Ledger, metrics *statsx.Metrics) (*listener, error) {
	primary := servers[0]
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, cos.Wrap(err, "listener: socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, cos.Wrap(err, "listener: setsockopt")
	}
	sa := &unix.SockaddrInet4{Port: int(primary.ListenPort), Addr: primary.ListenHost}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, cos.Wrapf(err, "listener: bind %s", primary.Addr())
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return nil, cos.Wrapf(err, "listener: listen %s", primary.Addr())
	}

	l := &listener{
		disp:    disp,
		fd:      fd,
		servers: servers,
		rtr:     rtr,
		alog:    alog,
		ledger:  ledger,
		metrics: metrics,
		loghdr:  fmt.Sprintf("listener[%s]", primary.Addr()),
	}
	if err := disp.Subscribe(fd, dispatcher.Readable, l); err != nil {
		unix.Close(fd)
		return nil, err
	}
	nlog.Infoln(l.loghdr, "bound")
	return l, nil
}

func (l *listener) close() {
	l.disp.Unsubscribe(l.fd)
	unix.Close(l.fd)
}

// HandleEvents implements dispatcher.Sink: accept every pending connection
// in a batch, since the listening socket is level-triggered and edge cases
// (SYN flood bursts) shouldn't require a second readiness wait per accept.
func (l *listener) HandleEvents(dispatcher.EventMask) {
	for {
		connFd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if cos.IsErrWouldBlock(err) {
				return
			}
			nlog.Warningln(l.loghdr, "accept:", err)
			return
		}
		var authSecret []byte
		if _, err := session.New(l.disp, connFd, l.servers, l.rtr, l.alogOrNil(), l.ledgerOrNil(), l.metrics, authSecret); err != nil {
			nlog.Warningln(l.loghdr, "session setup failed:", err)
			unix.Close(connFd)
		}
	}
}

func (l *listener) alogOrNil() session.AccessLogger {
	if l.alog == nil {
		return nil
	}
	return l.alog
}

func (l *listener) ledgerOrNil() session.UploadLedger {
	if l.ledger == nil {
		return nil
	}
	return l.ledger
}

// HandleException implements dispatcher.Sink.
func (l *listener) HandleException(message string) {
	nlog.Errorln(l.loghdr, "exception:", message)
}
