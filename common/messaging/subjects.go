package messaging

import "strings"

// DefaultSubjectPrefix is the root of every mirrored envelope subject:
// guildrelay.events.<event_type>.
const DefaultSubjectPrefix = "guildrelay.events"

// Header names set on mirrored envelopes.
const (
	HeaderEventType  = "Relay-Event-Type"
	HeaderDeliveryID = "Relay-Delivery-Id"
)

// EventSubject returns the subject an envelope of eventType is mirrored on.
func EventSubject(prefix, eventType string) string {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + eventType
}

// AllEventsSubject returns the wildcard subject matching every mirrored
// envelope under prefix.
func AllEventsSubject(prefix string) string {
	return EventSubject(prefix, "*")
}
