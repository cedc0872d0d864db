package reconcile

import "github.com/duobook/duobook-go/internal/model"

// Kind classifies why a run failed.
type Kind string

const (
	KindNone      Kind = ""
	KindNoSession Kind = "no_session"
	KindAuth      Kind = "auth"
	KindOffline   Kind = "offline"
	KindMalformed Kind = "malformed"
	KindServer    Kind = "server"
	KindLocal     Kind = "local"
)

// Stats counts the writes a run performed.
type Stats struct {
	DeletionsPushed int `json:"deletionsPushed"`
	DeletionsPulled int `json:"deletionsPulled"`
	BooksPushed     int `json:"booksPushed"`
	BooksPulled     int `json:"booksPulled"`
	LocationsPushed int `json:"locationsPushed"`
	LocationsPulled int `json:"locationsPulled"`
}

// RemoteWrites is the number of write requests sent to the server.
func (s Stats) RemoteWrites() int {
	n := s.DeletionsPushed + s.BooksPushed
	if s.LocationsPushed > 0 {
		n++
	}
	return n
}

// Result is the outcome of one run. Runs never return errors; callers branch
// on Success and Kind.
type Result struct {
	Success    bool     `json:"success"`
	Error      string   `json:"error,omitempty"`
	NewBookIDs []string `json:"newBookIds"`
	Kind       Kind     `json:"kind,omitempty"`
	Stats      Stats    `json:"stats"`
	Err        error    `json:"-"`
}

// Event is delivered to observers after a successful run.
type Event struct {
	NewBookIDs []string
	// Books holds the summaries of the pulled books, in NewBookIDs order.
	Books []model.BookSummary
}

// Observer is told about every successful run.
type Observer interface {
	SyncCompleted(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) SyncCompleted(e Event) { f(e) }
