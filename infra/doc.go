// Package infra contains technical adapters such as the MQTT result
// publisher, metrics sinks, report rendering and tracing. These packages
// depend only on the interfaces and types defined in the core packages.
package infra
