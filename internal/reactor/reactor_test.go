//go:build linux || darwin || freebsd || netbsd || openbsd

package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// pipePair returns a non-blocking pipe's read and write ends as raw fds.
func pipePair(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

type recordingSource struct {
	fd              int
	readCount       int
	writeCount      int
	order           *[]string
}

func (s *recordingSource) FD() int { return s.fd }
func (s *recordingSource) OnReadable() {
	s.readCount++
	*s.order = append(*s.order, "read")
}
func (s *recordingSource) OnWritable() {
	s.writeCount++
	*s.order = append(*s.order, "write")
}

type recordingTick struct{ fired int }

func (t *recordingTick) OnTick() { t.fired++ }

func TestSubscribeIORejectsDuplicate(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	rfd, _ := pipePair(t)
	var order []string
	src := &recordingSource{fd: rfd, order: &order}

	if err := r.SubscribeIO(src, Readable); err != nil {
		t.Fatalf("first SubscribeIO: %v", err)
	}
	if err := r.SubscribeIO(src, Readable); err != ErrAlreadyRegistered {
		t.Fatalf("second SubscribeIO = %v, want ErrAlreadyRegistered", err)
	}
}

func TestUnsubscribeIOUnknownFails(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	rfd, _ := pipePair(t)
	var order []string
	src := &recordingSource{fd: rfd, order: &order}
	if err := r.UnsubscribeIO(src); err != ErrNotRegistered {
		t.Fatalf("UnsubscribeIO = %v, want ErrNotRegistered", err)
	}
}

func TestTickSubscribersFireAfterIOInOrder(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	rfd, wfd := pipePair(t)
	var order []string
	src := &recordingSource{fd: rfd, order: &order}
	if err := r.SubscribeIO(src, Readable); err != nil {
		t.Fatalf("SubscribeIO: %v", err)
	}

	var t1, t2 recordingTick
	if err := r.SubscribeTick(&t1); err != nil {
		t.Fatalf("SubscribeTick t1: %v", err)
	}
	if err := r.SubscribeTick(&t2); err != nil {
		t.Fatalf("SubscribeTick t2: %v", err)
	}
	if err := r.SubscribeTick(&t1); err != ErrAlreadyRegistered {
		t.Fatalf("duplicate SubscribeTick = %v, want ErrAlreadyRegistered", err)
	}

	unix.Write(wfd, []byte("x"))

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	deadline := time.After(2 * time.Second)
	for {
		if src.readCount > 0 && t1.fired > 0 && t2.fired > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for dispatch: read=%d t1=%d t2=%d", src.readCount, t1.fired, t2.fired)
		case <-time.After(10 * time.Millisecond):
		}
	}

	r.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !r.UnsubscribeTick(&t1) {
		t.Fatalf("UnsubscribeTick(t1) = false, want true")
	}
	if r.UnsubscribeTick(&t1) {
		t.Fatalf("second UnsubscribeTick(t1) = true, want false")
	}
}

func TestStopIsCooperative(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	time.Sleep(60 * time.Millisecond) // let at least one iteration happen
	r.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Stop")
	}
}
