package agent

import "context"

// Outcome is what a behaviour reports after one action.
type Outcome int

const (
	// Progress means the behaviour did work and wants another turn.
	Progress Outcome = iota
	// Blocked means the behaviour found nothing to do until a new message arrives.
	Blocked
	// Finished removes the behaviour from the agent.
	Finished
)

func (o Outcome) String() string {
	switch o {
	case Progress:
		return "progress"
	case Blocked:
		return "blocked"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Behaviour is a unit of cooperative work scheduled by an Agent. Action must
// not block on message arrival; it returns Blocked instead.
type Behaviour interface {
	Name() string
	Action(ctx context.Context, a *Agent) (Outcome, error)
}

type funcBehaviour struct {
	name string
	fn   func(ctx context.Context, a *Agent) (Outcome, error)
}

func (b *funcBehaviour) Name() string { return b.name }

func (b *funcBehaviour) Action(ctx context.Context, a *Agent) (Outcome, error) {
	return b.fn(ctx, a)
}

// Func adapts fn to a Behaviour.
func Func(name string, fn func(ctx context.Context, a *Agent) (Outcome, error)) Behaviour {
	return &funcBehaviour{name: name, fn: fn}
}

// OneShot runs fn once and finishes.
func OneShot(name string, fn func(ctx context.Context, a *Agent) error) Behaviour {
	return Func(name, func(ctx context.Context, a *Agent) (Outcome, error) {
		if err := fn(ctx, a); err != nil {
			return Finished, err
		}
		return Finished, nil
	})
}
