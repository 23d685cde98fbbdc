package dispatch

import "errors"

// errQueueFull is returned when an unreliable frame is dropped because the
// transmit queue is full; it is local and never unwinds out of the API.
var errQueueFull = errors.New("dispatch: transmit queue full")
