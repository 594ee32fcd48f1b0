package experiment

import "time"

// ConsumerProgress is a live view of one consumer.
type ConsumerProgress struct {
	Name      string
	Priority  bool
	Processed int64
	Buffered  int64
	Pending   int
	Reported  bool
}

// Progress is a point-in-time view of a running experiment. It is safe to
// take from any goroutine.
type Progress struct {
	RunID     string
	Elapsed   time.Duration
	Started   bool
	Sent      int64
	Delivered int64
	Produced  int64
	// Target is the number of spam messages processed by a complete run.
	Target    int64
	Reports   int
	Expected  int
	Consumers []ConsumerProgress
}

// Progress snapshots the run.
func (e *Experiment) Progress() Progress {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()

	transport := e.hub.Metrics()
	p := Progress{
		RunID:     e.runID,
		Started:   e.master.Started(),
		Sent:      transport.MessagesSent,
		Delivered: transport.MessagesDelivered,
		Reports:   e.master.Reports(),
		Expected:  max(e.master.Expected(), 0),
		Target:    int64(e.opt.Messages) * int64(len(e.spammers)) * int64(len(e.consumers)),
	}
	if !started.IsZero() {
		p.Elapsed = time.Since(started)
	}
	for _, s := range e.spammers {
		p.Produced += s.Sent()
	}
	for _, c := range e.consumers {
		p.Consumers = append(p.Consumers, ConsumerProgress{
			Name:      c.Name(),
			Priority:  c.IsPriority(),
			Processed: c.Processed(),
			Buffered:  c.Buffered(),
			Pending:   transport.Pending[c.Name()],
			Reported:  c.Reported(),
		})
	}
	return p
}

// Options returns the normalized options.
func (e *Experiment) Options() Options { return e.opt }
