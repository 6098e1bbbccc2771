package broker

import "time"

// Protective policy (message-ttl=24h, max-length=100000,
// overflow=drop-head), applied as stream-level limits on SB_EVENTS: they
// cover every subject in the stream, the DLQ included, and the message
// cap counts the whole stream rather than each queue.
const (
	maxAgeProtected  = 24 * time.Hour
	maxMsgsProtected = 100_000
)
