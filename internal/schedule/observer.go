package schedule

// Observer receives store and engine events. cmd/signage adapts the
// Prometheus collector to it.
type Observer interface {
	DatasetLoaded(result string)
	DayCacheBuilt(day string, platforms int)
	QueryServed(returned int)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) DatasetLoaded(string)      {}
func (NopObserver) DayCacheBuilt(string, int) {}
func (NopObserver) QueryServed(int)           {}
