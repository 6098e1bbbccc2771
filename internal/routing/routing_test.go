package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arc-self/sentinel-pipeline/internal/platform/broker"
)

func TestRoutingKeysForKnownFamilies(t *testing.T) {
	cases := map[string]string{
		"geo.device_location":     broker.RoutingKeyGeo,
		"license.renewed":         broker.RoutingKeyLicense,
		"session.started":         broker.RoutingKeySession,
		"screen.viewed":           broker.RoutingKeyScreen,
		"ui.button_tapped":        broker.RoutingKeyUI,
		"system.crash_reported":   broker.RoutingKeySystem,
		"unknown.totally_unknown": broker.RoutingKeySystem,
	}

	for eventName, want := range cases {
		keys := RoutingKeysFor(eventName)
		assert.Contains(t, keys, broker.RoutingKeyRaw)
		assert.Contains(t, keys, want)
		assert.Len(t, keys, 2)
	}
}
