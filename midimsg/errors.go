package midimsg

import "errors"

// ErrMalformedPacket indicates a truncated or otherwise unparsable packet
// list buffer. Per the engine's error handling design, malformed packets
// are always logged and skipped by callers on the realtime path — this
// error is never allowed to propagate out of Parse's caller into the
// receiver's hot path.
var ErrMalformedPacket = errors.New("midimsg: malformed packet")
