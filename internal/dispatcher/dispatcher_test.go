package dispatcher

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

type recordingSink struct {
	events     int32
	exceptions int32
	onEvents   func(EventMask)
}

func (s *recordingSink) HandleEvents(ready EventMask) {
	atomic.AddInt32(&s.events, 1)
	if s.onEvents != nil {
		s.onEvents(ready)
	}
}

func (s *recordingSink) HandleException(string) {
	atomic.AddInt32(&s.exceptions, 1)
}

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	return fds[0], fds[1]
}

func TestSubscribeDeliversReadableEvent(t *testing.T) {
	d, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	rfd, wfd := newPipe(t)
	defer unix.Close(rfd)
	defer unix.Close(wfd)

	sink := &recordingSink{onEvents: func(EventMask) { d.Quit() }}
	if err := d.Subscribe(rfd, Readable, sink); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := unix.Write(wfd, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	done := make(chan struct{})
	go func() { d.Run(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not observe readiness in time")
	}

	if atomic.LoadInt32(&sink.events) == 0 {
		t.Fatal("expected at least one HandleEvents call")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	d, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	rfd, wfd := newPipe(t)
	defer unix.Close(rfd)
	defer unix.Close(wfd)

	sink := &recordingSink{}
	if err := d.Subscribe(rfd, Readable, sink); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	d.Unsubscribe(rfd)
	d.Unsubscribe(rfd) // must not panic or error
}

func TestDispatchOneRecoversPanicAsException(t *testing.T) {
	d, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	rfd, wfd := newPipe(t)
	defer unix.Close(rfd)
	defer unix.Close(wfd)

	sink := &recordingSink{onEvents: func(EventMask) { panic("boom") }}
	if err := d.Subscribe(rfd, Readable, sink); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ent := d.entries[rfd]
	d.dispatchOne(ent, Readable)

	if atomic.LoadInt32(&sink.exceptions) != 1 {
		t.Fatalf("expected exactly one HandleException call, got %d", sink.exceptions)
	}
}

func TestArmDisarmDoesNotFireAfterStop(t *testing.T) {
	d, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	var fired int32
	to := d.Arm(5*time.Millisecond, timeoutSinkFunc(func() { atomic.AddInt32(&fired, 1) }))
	d.Disarm(to)

	time.Sleep(15 * time.Millisecond)
	d.wheel.FireExpired()

	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("disarmed timeout must not fire")
	}
}

type timeoutSinkFunc func()

func (f timeoutSinkFunc) HandleTimeout() { f() }
