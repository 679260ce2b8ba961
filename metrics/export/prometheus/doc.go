// Package prometheus exposes authsession metrics through a
// client_golang Collector.
package prometheus
