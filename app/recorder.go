package app

import "time"

// Recorder receives operational measurements from the app layer.
// adapters/metrics implements it with Prometheus.
type Recorder interface {
	CallCompleted(service, status string, d time.Duration)
	ValidationFailed(service string)
	PortalFailed(operation string)
	EntitiesTracked(n int)
	DocumentReloaded(ok bool)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) CallCompleted(string, string, time.Duration) {}
func (NopRecorder) ValidationFailed(string)                     {}
func (NopRecorder) PortalFailed(string)                         {}
func (NopRecorder) EntitiesTracked(int)                         {}
func (NopRecorder) DocumentReloaded(bool)                       {}
