// Package msgs defines the messages a reader exchanges with upstream
// consumers and the typed envelope they travel in.
//
// Events flow from the reader to consumers over MQTT or websocket.
// Commands flow from consumers back to the reader.
package msgs
