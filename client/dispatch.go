package wl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"deedles.dev/wlengine/wire"
)

// Dispatch reads every event that is available without blocking and
// delivers it. It returns the number of events decoded.
//
// Errors that leave the connection usable are collected and returned
// together once everything available has been dispatched. Any other
// error closes the connection and is returned immediately.
func (c *Connection) Dispatch() (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var errs []error
	total := 0
	for {
		n, err := c.processLocked(&errs)
		total += n
		if err != nil {
			return total, errors.Join(append(errs, err)...)
		}

		more, err := c.receiveLocked(false)
		if err != nil {
			return total, errors.Join(append(errs, err)...)
		}
		if !more {
			return total, errors.Join(errs...)
		}
	}
}

// FlushEvents dispatches pending events without blocking.
func (c *Connection) FlushEvents() error {
	_, err := c.Dispatch()
	return err
}

// Sync asks the compositor to call done once it has processed every
// request sent so far. done runs during a later call to Dispatch or
// Roundtrip.
func (c *Connection) Sync(done func(data uint32)) (Callback, error) {
	created, err := c.send(&request{
		sender: c.display,
		op:     0,
		args:   []any{wire.NewID(0)},
		init:   func(obj *object) { obj.listen = c.callbackListener(done, true) },
	})
	if err != nil {
		return Callback{}, err
	}
	return Callback{Object{c: c, h: created[0]}}, nil
}

// Roundtrip blocks until the compositor has processed every request
// sent so far, dispatching events as they arrive. If timeout is
// positive and elapses first, it returns ErrTimeout and the connection
// stays usable.
func (c *Connection) Roundtrip(timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.RoundtripContext(ctx)
}

// RoundtripContext is like Roundtrip but gives up when ctx is done.
func (c *Connection) RoundtripContext(ctx context.Context) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	start := time.Now()

	var done bool
	_, err := c.Sync(func(uint32) { done = true })
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.t.SetReadDeadline(deadline)
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		c.t.SetReadDeadline(time.Unix(1, 0))
	})
	defer func() {
		if !stop() {
			<-fired
		}
		c.t.SetReadDeadline(time.Time{})
	}()

	var errs []error
	for {
		_, err := c.processLocked(&errs)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		if done {
			c.metrics.Roundtrip(time.Since(start))
			return errors.Join(errs...)
		}

		_, err = c.receiveLocked(true)
		if err != nil {
			if errors.Is(err, ErrTimeout) && (ctx.Err() != nil) {
				err = fmt.Errorf("roundtrip: %w: %w", ErrTimeout, context.Cause(ctx))
			}
			return errors.Join(append(errs, err)...)
		}
	}
}

// receiveLocked performs one read from the transport. It reports
// whether anything was read. readMu must be held.
func (c *Connection) receiveLocked(block bool) (bool, error) {
	c.mu.Lock()
	if c.state != Connected {
		defer c.mu.Unlock()
		c.discardInputLocked()
		return false, c.deadErrLocked()
	}
	c.mu.Unlock()

	data, fds, err := c.t.Receive(block)
	if err != nil {
		if !isFatal(err) {
			return false, err
		}
		c.discardInputLocked()
		return false, c.fail(err)
	}
	if (len(data) == 0) && (len(fds) == 0) {
		return false, nil
	}

	c.metrics.Received(len(data), len(fds))
	c.in = append(c.in, data...)
	c.fds.Push(fds...)
	return true, nil
}

// processLocked decodes and delivers every complete message in the
// input buffer. Non-fatal errors are appended to errs. readMu must be
// held.
func (c *Connection) processLocked(errs *[]error) (int, error) {
	count := 0
	for {
		c.mu.Lock()
		if c.state != Connected {
			err := c.deadErrLocked()
			c.mu.Unlock()
			c.discardInputLocked()
			return count, err
		}

		h, body, n, err := wire.Split(c.in)
		if err != nil {
			c.failLocked(err)
			c.mu.Unlock()
			c.discardInputLocked()
			return count, err
		}
		if n == 0 {
			c.mu.Unlock()
			return count, nil
		}

		after, err := c.handleLocked(h, body)
		c.in = c.in[n:]
		if err != nil {
			var nerr nonFatalError
			if !errors.As(err, &nerr) {
				c.failLocked(err)
				c.mu.Unlock()
				c.discardInputLocked()
				return count, err
			}
			*errs = append(*errs, nerr.err)
		}
		c.mu.Unlock()

		count++
		for _, f := range after {
			f()
		}
	}
}

// nonFatalError marks an error found while handling an event that
// does not affect the connection.
type nonFatalError struct {
	err error
}

func (err nonFatalError) Error() string {
	return err.err.Error()
}

func (err nonFatalError) Unwrap() error {
	return err.err
}

// handleLocked decodes a single message and runs its built-in listener.
// It returns the functions to call once c.mu has been released.
func (c *Connection) handleLocked(h wire.Header, body []byte) ([]func(), error) {
	obj, zombie, ok := c.objects.Get(h.Sender)
	if !ok {
		return nil, UnknownSenderError{Sender: h.Sender, Opcode: h.Opcode}
	}
	handle, _ := c.objects.Handle(h.Sender)

	ev := Event{
		Sender:    Object{c: c, h: handle},
		Interface: obj.name,
		Opcode:    h.Opcode,
	}

	if obj.iface == nil {
		ev.Data = bytes.Clone(body)
		c.logger.Debug(wire.Describe(obj.name, h.Sender, fmt.Sprintf("event_%v", h.Opcode), nil), "bytes", len(body))
	} else {
		m, err := obj.iface.Event(h.Opcode)
		if err != nil {
			return nil, err
		}
		args, err := wire.DecodeArgs(h, m.Args, body, &c.fds)
		if err != nil {
			return nil, err
		}
		ev.Name, ev.Args = m.Name, args
		c.logger.Debug(wire.Describe(obj.name, h.Sender, m.Name, args))

		if zombie {
			closeFDs(args)
			return nil, nil
		}

		err = c.registerServerObjectsLocked(obj, m, args)
		if err != nil {
			return nil, err
		}
	}

	if zombie {
		return nil, nil
	}
	c.metrics.Event(obj.name)

	var after []func()
	if obj.listen != nil {
		f, err := obj.listen(ev)
		if err != nil {
			return nil, err
		}
		if f != nil {
			after = append(after, f)
		}
	}

	if obj.handler == nil {
		closeFDs(ev.Args)
		return after, nil
	}

	handler := obj.handler
	return append(after, func() { handler(ev) }), nil
}

// registerServerObjectsLocked adds the objects created by new_id
// arguments of an event.
func (c *Connection) registerServerObjectsLocked(parent *object, m *wire.Method, args []any) error {
	for i, arg := range m.Args {
		if arg.Type != wire.ArgNewID {
			continue
		}

		id := uint32(args[i].(wire.NewID))
		obj := object{
			iface:   c.ifaces[arg.Interface],
			name:    arg.Interface,
			version: parent.version,
		}
		_, err := c.objects.Insert(id, &obj)
		if err != nil {
			return fmt.Errorf("%w: server-created object: %w", ErrMalformedMessage, err)
		}
	}
	c.metrics.Objects(c.objects.Live())
	return nil
}
