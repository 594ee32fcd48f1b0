// Package experiment runs a complete spam benchmark inside one process.
//
// An experiment owns a bus.Hub and an in-memory directory. Run starts the
// agents in dependency order so that discovery snapshots are complete:
//
//  1. producers register and wait for START;
//  2. baseline and priority consumers register and snapshot the producer set;
//  3. the coordinator counts the consumers and broadcasts START.
//
// Run returns once every agent has stopped, or with an error when an agent
// fails, the context ends, or Options.Timeout elapses.
//
//	exp, err := experiment.New(experiment.Options{
//		Producers: 2,
//		Consumers: 2,
//		Messages:  1000,
//	})
//	if err != nil {
//		return err
//	}
//	res, err := exp.Run(ctx)
package experiment
