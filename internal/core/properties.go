package core

import (
	"time"

	"github.com/danmuck/tensorctl/internal/device"
)

// RuntimeVersion identifies this build of the runtime.
const RuntimeVersion = "0.1.0"

// Properties is an immutable snapshot of the runtime environment, captured
// once on first request.
type Properties struct {
	Version       string
	DriverVersion string
	BlasVersion   string
	DnnVersion    string
	StartTime     time.Time
	Capabilities  []int
}

// Properties returns the environment snapshot. The first caller pays for the
// capture; every later call returns the same values.
func (c *Context) Properties() Properties {
	c.propsOnce.Do(func() {
		c.props = Properties{
			Version:       RuntimeVersion,
			DriverVersion: device.DriverVersion,
			BlasVersion:   device.BlasVersion,
			DnnVersion:    device.DnnVersion,
			StartTime:     time.Now(),
			Capabilities:  c.registry.Capabilities(),
		}
	})
	return c.props
}
