// Package hardware provides the device layer of scopecore: driver
// interfaces for each instrument axis, per-device services that serialize
// access and publish state notifications, and simulated drivers that back
// the default configuration.
//
// Drivers are deliberately thin. A Stage knows how to move and report
// position; it does not know about travel limits, events or scans. The
// services own policy: StageService enforces the configured travel limits,
// holds the device mutex for the whole move and publishes
// StagePositionChanged when the move settles. The scan engine and the
// command handlers both go through the services, so a manual jog from the
// API can never interleave with a scan step on the same device.
//
// The simulated drivers are not stubs. The sim camera synthesizes frames
// whose contrast peaks when the stage and piezo sit at the simulated focal
// plane, which lets contrast autofocus, the reflection offset sensor and
// the full acquisition loop run end to end on a laptop.
package hardware
