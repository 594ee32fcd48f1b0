// Package agent provides the cooperative agent runtime.
//
// An [Agent] owns a bus port and a list of behaviours. Each scheduling round
// gives every behaviour one [Behaviour.Action]. A behaviour that has nothing
// to do returns [Blocked]; when a whole round is blocked the agent parks on
// its port until a new message is delivered, which is the only point where an
// agent suspends. Behaviour state is touched only by the agent's goroutine.
//
//	a, _ := agent.New(agent.Config{
//		Name:       "Consumer1",
//		Capability: "consumer",
//		Port:       port,
//		Directory:  dir,
//	})
//	a.AddBehaviour(agent.Func("consume", func(ctx context.Context, a *agent.Agent) (agent.Outcome, error) {
//		msg := a.Receive(bus.MatchTag("spam"))
//		if msg == nil {
//			return agent.Blocked, nil
//		}
//		// handle msg
//		return agent.Progress, nil
//	}))
//	err := a.Run(ctx)
//
// Run registers the capability first; a registration failure ends the agent
// before any behaviour runs.
package agent
