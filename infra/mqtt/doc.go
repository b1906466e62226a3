// Package mqtt forwards simulation events to an MQTT broker using the
// Eclipse Paho client. Each event is wrapped in a JSON envelope carrying the
// run id and published on <prefix>/events/<type>.
package mqtt
