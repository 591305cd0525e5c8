package metrics

// Metrics holds the counters shared by sessions, the watcher and the HTTP
// server.
type Metrics struct {
	registry *Registry

	MarkersCreated   *Counter
	MarkersRemoved   *Counter
	TooltipsRewrites *Counter
	Flushes          *Counter
	DetachedSkipped  *Counter
	PendingDropped   *Counter
	FilesAnnotated   *Counter
	HTTPRequests     *Counter
	HTTPRateLimited  *Counter

	ActiveSessions *Gauge

	FlushDuration *Histogram
}

// New registers the emojilens metrics on registry.
func New(registry *Registry) *Metrics {
	if registry == nil {
		registry = NewRegistry("emojilens")
	}
	return &Metrics{
		registry:         registry,
		MarkersCreated:   registry.Counter("markers_created_total", "Emoji markers inserted into documents"),
		MarkersRemoved:   registry.Counter("markers_removed_total", "Emoji markers unwrapped back to text"),
		TooltipsRewrites: registry.Counter("tooltips_rewritten_total", "Marker tooltips rewritten after a preference change"),
		Flushes:          registry.Counter("mutation_flushes_total", "Debounced mutation flushes"),
		DetachedSkipped:  registry.Counter("mutation_detached_total", "Pending nodes skipped because they left the document"),
		PendingDropped:   registry.Counter("mutation_dropped_total", "Pending nodes dropped while annotation was disabled"),
		FilesAnnotated:   registry.Counter("files_annotated_total", "HTML files annotated by the watcher"),
		HTTPRequests:     registry.Counter("http_requests_total", "HTTP requests served"),
		HTTPRateLimited:  registry.Counter("http_rate_limited_total", "HTTP requests rejected by the rate limiter"),
		ActiveSessions:   registry.Gauge("sessions_active", "Live annotation sessions"),
		FlushDuration:    registry.Histogram("mutation_flush_seconds", "Time spent in one mutation flush", nil),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *Registry {
	return m.registry
}

// OrNew returns m, or a fresh set on a private registry when m is nil.
func OrNew(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return New(nil)
}
