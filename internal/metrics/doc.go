// Package metrics provides latency statistics for consumers and the run-wide
// aggregate kept by the coordinator.
//
// # LatencyStats
//
// Each consumer owns a [LatencyStats] and observes one sample per processed
// message:
//
//	stats := metrics.NewLatencyStats()
//	began := time.Now()
//	// ... poll and process ...
//	stats.Observe(time.Since(began))
//
//	if min, ok := stats.Min(); ok {
//		fmt.Println("shortest:", min)
//	}
//
// Min and Max are undefined until the first sample, which is reported through
// the ok result instead of sentinel values. Percentiles come from an
// hdrhistogram so memory stays fixed no matter how many messages arrive.
//
// # Aggregate
//
// The coordinator folds completion reports into an [Aggregate] created when
// START is broadcast, and finalizes it into a [Summary] once every expected
// consumer has reported:
//
//	agg := metrics.NewAggregate(time.Now())
//	agg.Fold(report)
//	if agg.Complete(expected) {
//		summary := agg.Finalize(time.Now(), expected)
//	}
//
// The summary average is elapsed time divided by total messages and is
// undefined when no messages were processed.
package metrics
