// Package routing derives the NATS subjects (routing keys) a normalized
// event must be published to: every event reaches sb.events.raw, plus
// one family-specific subject keyed by its event_name prefix.
package routing

import (
	"strings"

	"github.com/arc-self/sentinel-pipeline/internal/platform/broker"
)

// familyPrefixes maps an event_name dot-prefix to its routing key, in
// priority order. Unmatched prefixes fall through to the system family.
var familyPrefixes = []struct {
	prefix string
	key    string
}{
	{"geo.", broker.RoutingKeyGeo},
	{"license.", broker.RoutingKeyLicense},
	{"session.", broker.RoutingKeySession},
	{"screen.", broker.RoutingKeyScreen},
	{"ui.", broker.RoutingKeyUI},
	{"system.", broker.RoutingKeySystem},
}

// RoutingKeysFor returns every subject a normalized event with the given
// event_name must be published to: sb.events.raw always, plus exactly
// one family subject.
func RoutingKeysFor(eventName string) []string {
	return []string{broker.RoutingKeyRaw, familyKeyFor(eventName)}
}

// familyKeyFor resolves the single family-specific routing key for an
// event_name, defaulting to sb.events.system when no known prefix
// matches.
func familyKeyFor(eventName string) string {
	for _, fp := range familyPrefixes {
		if strings.HasPrefix(eventName, fp.prefix) {
			return fp.key
		}
	}
	return broker.RoutingKeySystem
}
