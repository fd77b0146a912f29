package wire

import (
	"errors"

	"golang.org/x/sys/unix"
)

// FDSource supplies received file descriptors in arrival order.
type FDSource interface {
	PopFD() (int, bool)
}

// FDQueue holds file descriptors that have been received but not yet
// claimed by a decoded message. It is not safe for concurrent use.
type FDQueue struct {
	fds []int
}

func (q *FDQueue) Push(fds ...int) {
	q.fds = append(q.fds, fds...)
}

func (q *FDQueue) PopFD() (int, bool) {
	if len(q.fds) == 0 {
		return -1, false
	}

	fd := q.fds[0]
	q.fds = q.fds[1:]
	return fd, true
}

func (q *FDQueue) Len() int {
	return len(q.fds)
}

// Close closes every queued descriptor and empties the queue.
func (q *FDQueue) Close() error {
	errs := make([]error, 0, len(q.fds))
	for _, fd := range q.fds {
		errs = append(errs, unix.Close(fd))
	}
	q.fds = nil
	return errors.Join(errs...)
}
