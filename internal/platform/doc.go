// Package platform ties the bridge together.
//
// Discover loads the cloud device inventory, filters it by the ignore lists
// and capability support, reconciles it with the registration store and
// creates one accessory per device. The platform then routes push events
// and bus commands to those accessories by device ID, and HealthReporter
// publishes the bridge's retained health with device counts.
package platform
