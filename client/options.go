package wl

import (
	"deedles.dev/wlengine/internal/metrics"
	"deedles.dev/wlengine/wire"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger used for state changes and, at debug
// level, protocol traces.
func WithLogger(l *log.Logger) Option {
	return func(c *Connection) {
		c.logger = l
	}
}

// WithRegisterer enables Prometheus metrics for the connection,
// registering them with reg. Each registerer can only be used for one
// connection.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Connection) {
		c.metrics = metrics.New(reg)
	}
}

// WithInterfaces describes extension interfaces so that objects bound
// or created with them have their requests checked and their events
// decoded.
func WithInterfaces(ifaces ...*wire.Interface) Option {
	return func(c *Connection) {
		for _, iface := range ifaces {
			c.ifaces[iface.Name] = iface
		}
	}
}
