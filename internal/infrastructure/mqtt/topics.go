package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the scopecore MQTT control surface.
//
// The scheme is flat: scopecore/{category}/{name}. Remote clients publish
// commands, the core publishes events and its own status. The kind strings
// in the final segment are the stable snake_case names the bus events carry.
const (
	// TopicPrefix is the base for all scopecore topics.
	TopicPrefix = "scopecore"

	// TopicPrefixCommand is the base for inbound command topics.
	TopicPrefixCommand = "scopecore/command"

	// TopicPrefixEvent is the base for outbound notification topics.
	TopicPrefixEvent = "scopecore/event"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "scopecore/system"
)

// Topics provides builders for scopecore MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.Command("start_acquisition")
//	// Returns: "scopecore/command/start_acquisition"
type Topics struct{}

// =============================================================================
// Command Topics
// =============================================================================

// Command returns the topic a command of the given kind arrives on.
//
// Example: scopecore/command/start_acquisition
func (Topics) Command(kind string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixCommand, kind)
}

// =============================================================================
// Event Topics
// =============================================================================

// Event returns the topic a notification of the given kind is published on.
//
// Example: scopecore/event/acquisition_progress
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, kind)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the instrument status topic. Online status is
// published retained here, and the Last Will and Testament lands on the
// same topic so clients see crashes as well as clean shutdowns.
//
// Example: scopecore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommands returns a pattern matching every inbound command topic.
//
// Pattern: scopecore/command/#
func (Topics) AllCommands() string {
	return TopicPrefixCommand + "/#"
}

// AllEvents returns a pattern matching every outbound notification topic.
//
// Pattern: scopecore/event/#
func (Topics) AllEvents() string {
	return TopicPrefixEvent + "/#"
}

// AllTopics returns a pattern matching all scopecore topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: scopecore/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// =============================================================================
// Parsing
// =============================================================================

// ParseCommandTopic extracts the command kind from an inbound topic.
// It returns false for topics outside the command prefix and for nested
// segments, which the flat scheme does not use.
func ParseCommandTopic(topic string) (string, bool) {
	kind, ok := strings.CutPrefix(topic, TopicPrefixCommand+"/")
	if !ok || kind == "" || strings.Contains(kind, "/") {
		return "", false
	}
	return kind, true
}
