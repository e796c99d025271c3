// Package channels manages imaging channel configurations: the named
// recipes (exposure, gain, illumination, filter, Z offset) an acquisition
// applies before each capture.
//
// Configurations are stored per objective in SQLite and cached in a
// Registry for lock-cheap reads on the scan path. The Mode handler resolves
// SetMicroscopeModeCommand against the registry and applies the resolved
// configuration to the hardware services, so "switch to BF 20x" is a single
// command from any control surface.
package channels
