package mqtt

import "fmt"

// Topic prefixes for the Gray Sync MQTT namespace.
//
// All sync topics use the flat scheme: graysync/{category}/{device_or_id}
const (
	// TopicPrefix is the base for all Gray Sync topics.
	TopicPrefix = "graysync"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graysync/system"
)

// Topics provides builders for Gray Sync MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	deltaTopic := topics.DeviceDelta("ctl-1")
//	// Returns: "graysync/delta/ctl-1"
type Topics struct{}

// DeviceDelta returns the topic carrying delta frames for one device.
//
// Example: graysync/delta/ctl-1
func (Topics) DeviceDelta(deviceID string) string {
	return fmt.Sprintf("%s/delta/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the engine status topic, used for the LWT and the
// online/offline announcements.
//
// Example: graysync/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
