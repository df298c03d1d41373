package session

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/nvaistore/webs3rv/internal/config"
	"github.com/nvaistore/webs3rv/internal/dispatcher"
	"github.com/nvaistore/webs3rv/internal/router"
)

// socketpairHarness wires a non-blocking unix socketpair, a dispatcher, and
// one Session the way cmd/webs3rv's listener would, for driving a full
// request/response cycle from the client's side of the wire.
type socketpairHarness struct {
	disp     *dispatcher.Dispatcher
	clientFd int
}

func newHarness(server *config.Server) *socketpairHarness {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	Expect(err).NotTo(HaveOccurred())
	Expect(unix.SetNonblock(fds[0], true)).To(Succeed())
	Expect(unix.SetNonblock(fds[1], true)).To(Succeed())

	d, err := dispatcher.New()
	Expect(err).NotTo(HaveOccurred())

	_, err = New(d, fds[0], []*config.Server{server}, router.New(), nil, nil, nil, nil)
	Expect(err).NotTo(HaveOccurred())

	return &socketpairHarness{disp: d, clientFd: fds[1]}
}

func (h *socketpairHarness) roundTrip(request string) string {
	_, err := unix.Write(h.clientFd, []byte(request))
	Expect(err).NotTo(HaveOccurred())

	go h.disp.Run()

	var got []byte
	buf := make([]byte, 4096)
	Eventually(func() string {
		n, _ := unix.Read(h.clientFd, buf)
		if n > 0 {
			got = append(got, buf[:n]...)
		}
		return string(got)
	}, 2*time.Second, 5*time.Millisecond).Should(ContainSubstring("\r\n\r\n"))

	h.disp.Quit()
	unix.Close(h.clientFd)
	return string(got)
}

var _ = Describe("a request routed to a CGI script", func() {
	It("runs the interpreter and returns its stdout as the response", func() {
		dir := GinkgoT().TempDir()
		script := filepath.Join(dir, "hello.cgi")
		Expect(os.WriteFile(script, []byte(
			"#!/bin/sh\nprintf 'Status: 200 OK\\r\\nContent-Type: text/plain\\r\\n\\r\\nhi from cgi'\n",
		), 0o755)).To(Succeed())

		server := &config.Server{
			ListenPort:  8080,
			MaxBodySize: 1 << 20,
			LocalRoutes: []config.LocalRoute{{
				Path:         "/",
				RootDir:      dir,
				AllowMethods: map[config.Method]bool{config.GET: true},
				CGITypes:     map[string]string{"cgi": "/bin/sh"},
			}},
		}

		h := newHarness(server)
		resp := h.roundTrip("GET /hello.cgi HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")

		Expect(resp).To(ContainSubstring("HTTP/1.1 200 OK"))
		Expect(resp).To(ContainSubstring("hi from cgi"))
	})
})

var _ = Describe("a request to an upload route", func() {
	It("writes the body to disk and acknowledges with 201", func() {
		rootDir := GinkgoT().TempDir()
		uploadDir := GinkgoT().TempDir()

		server := &config.Server{
			ListenPort:  8080,
			MaxBodySize: 1 << 20,
			LocalRoutes: []config.LocalRoute{{
				Path:         "/uploads/",
				RootDir:      rootDir,
				UploadDir:    uploadDir,
				AllowUpload:  true,
				AllowMethods: map[config.Method]bool{config.POST: true},
			}},
		}

		h := newHarness(server)
		body := "payload-bytes"
		req := "POST /uploads/new-file.bin HTTP/1.1\r\nHost: x\r\nConnection: close\r\nContent-Length: " +
			strconv.Itoa(len(body)) + "\r\n\r\n" + body
		resp := h.roundTrip(req)

		Expect(resp).To(ContainSubstring("HTTP/1.1 201"))

		written, err := os.ReadFile(filepath.Join(uploadDir, "new-file.bin"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(written)).To(Equal(body))
	})
})
