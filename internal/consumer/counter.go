package consumer

import "maps"

// ReceiptCounter counts processed messages per sender. Counts never decrease.
type ReceiptCounter struct {
	counts map[string]int
	total  int
}

func NewReceiptCounter() *ReceiptCounter {
	return &ReceiptCounter{counts: make(map[string]int)}
}

// Add records one processed message from sender and returns its new count.
func (c *ReceiptCounter) Add(sender string) int {
	c.counts[sender]++
	c.total++
	return c.counts[sender]
}

func (c *ReceiptCounter) Count(sender string) int { return c.counts[sender] }

func (c *ReceiptCounter) Total() int { return c.total }

func (c *ReceiptCounter) Len() int { return len(c.counts) }

// Saturated reports whether the counter holds exactly one entry per expected
// sender, no entries for anyone else, and every count equals quota.
func (c *ReceiptCounter) Saturated(expected map[string]struct{}, quota int) bool {
	if len(c.counts) != len(expected) {
		return false
	}
	for sender, n := range c.counts {
		if _, ok := expected[sender]; !ok || n != quota {
			return false
		}
	}
	return true
}

func (c *ReceiptCounter) Snapshot() map[string]int {
	return maps.Clone(c.counts)
}
