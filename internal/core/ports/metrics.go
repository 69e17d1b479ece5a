package ports

import "time"

// Recorder recebe as métricas do serviço.
type Recorder interface {
	ObserveCheck(key string, allowed bool)
	ObserveError(key, kind string)
	ObserveLockWait(key string, wait time.Duration)
}

// NopRecorder descarta todas as métricas.
type NopRecorder struct{}

func (NopRecorder) ObserveCheck(string, bool)             {}
func (NopRecorder) ObserveError(string, string)           {}
func (NopRecorder) ObserveLockWait(string, time.Duration) {}
