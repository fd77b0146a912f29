package wl

// Callback is a wl_callback, created by Sync and Surface.Frame.
type Callback struct {
	Object
}

func (c *Connection) callbackListener(done func(uint32), sync bool) func(Event) (func(), error) {
	return func(ev Event) (func(), error) {
		data := ev.Args[0].(uint32)

		// done is a destructor event. The ID is released by the
		// delete_id that follows it.
		c.objects.Destroy(ev.Sender.h)
		if sync {
			c.serial = data
		}

		if done == nil {
			return nil, nil
		}
		return func() { done(data) }, nil
	}
}
