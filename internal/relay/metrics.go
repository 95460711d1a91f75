package relay

// Metrics receives relay events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	SessionOpened()
	SessionClosed(reason EndReason)
	ChunkSent(bytes int)
	TranscoderRestarted(reason RestartReason)
	SpawnFailed()
}

type noopMetrics struct{}

func (noopMetrics) SessionOpened()                    {}
func (noopMetrics) SessionClosed(EndReason)           {}
func (noopMetrics) ChunkSent(int)                     {}
func (noopMetrics) TranscoderRestarted(RestartReason) {}
func (noopMetrics) SpawnFailed()                      {}
