package ui

// Presence is one entry of the known-peer list shown by UIs that have room
// for it.
type Presence struct {
	Name string `json:"name"`
	Peer string `json:"peer"`
}

// Notification levels.
const (
	LevelWarn  = "warning"
	LevelError = "error"
)

// Notification is a system alert such as a lagged event stream or a failed
// send.
type Notification struct {
	Text  string `json:"text"`
	Level string `json:"level"`
}

// Sink is the unified interface every UI surface must satisfy. Each call
// renders one complete line.
type Sink interface {
	ShowMessage(from, text string)
	ShowSystem(string)
	UpdatePeers([]Presence)
	ShowNotification(Notification)
}

type multiSink struct {
	sinks []Sink
}

// NewMultiSink fans chat events out to each registered sink.
func NewMultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) ShowMessage(from, text string) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowMessage(from, text)
		}
	}
}

func (m *multiSink) ShowSystem(text string) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowSystem(text)
		}
	}
}

func (m *multiSink) UpdatePeers(peers []Presence) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.UpdatePeers(peers)
		}
	}
}

func (m *multiSink) ShowNotification(n Notification) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowNotification(n)
		}
	}
}
