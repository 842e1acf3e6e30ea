package clocksender

import "errors"

// ErrTempoUnset is returned by Start when the current tempo is not
// positive (never set, or set to 0): the sender has no tick interval to
// schedule against.
var ErrTempoUnset = errors.New("clocksender: tempo not set")
