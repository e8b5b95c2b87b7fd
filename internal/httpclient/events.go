package httpclient

// EventKind classifies transport events.
type EventKind int

const (
	// EventUnauthorized is emitted for every 401 response.
	EventUnauthorized EventKind = iota + 1
)

func (k EventKind) String() string {
	switch k {
	case EventUnauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// Event is a side effect the transport reports to the application root.
type Event struct {
	Kind   EventKind
	Method string
	Path   string
}
