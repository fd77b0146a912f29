package wl

import (
	"fmt"

	"deedles.dev/wlengine/wire"
)

const (
	displayError    = 0
	displayDeleteID = 1
)

func (c *Connection) displayListener(ev Event) (func(), error) {
	switch ev.Opcode {
	case displayError:
		id := uint32(ev.Args[0].(wire.ObjectID))
		perr := ProtocolError{
			ObjectID: id,
			Code:     ev.Args[1].(uint32),
			Message:  ev.Args[2].(string),
		}
		if obj, _, ok := c.objects.Get(id); ok {
			perr.Interface = obj.name
		}
		return nil, &perr

	case displayDeleteID:
		id := ev.Args[0].(uint32)
		err := c.objects.Release(id)
		if err != nil {
			return nil, nonFatalError{fmt.Errorf("delete_id: %w", err)}
		}
		c.metrics.Objects(c.objects.Live())
	}

	return nil, nil
}
