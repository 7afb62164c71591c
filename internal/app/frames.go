package app

import "time"

// maxClockLag bounds how far a batch's newest frame may trail its arrival
// before the page clock is re-anchored.
const maxClockLag = time.Second

// frameClock maps a page's frame timestamps (milliseconds on the page's own
// clock) onto the loop's clock. The offset between the two clocks is fixed
// by the first batch and kept across batches, so the spacing the frame
// monitor measures is the page's own even at batch boundaries. It only
// moves when a batch would land in the future, when the page clock falls
// more than maxClockLag behind, or when the page clock restarts.
type frameClock struct {
	base     time.Time
	lastMs   float64
	anchored bool
}

// deliver calls frame once per timestamp, oldest first. Timestamps that do
// not advance past the previous one are dropped. It returns how many were
// delivered.
func (c *frameClock) deliver(now time.Time, timestampsMs []float64, frame func(time.Time)) int {
	if len(timestampsMs) == 0 {
		return 0
	}
	// A page that navigated away starts its clock over.
	if c.anchored && c.lastMs-timestampsMs[0] > float64(maxClockLag/time.Millisecond) {
		c.anchored = false
	}
	newest := timestampsMs[len(timestampsMs)-1]
	if !c.anchored {
		c.base = now.Add(-msDuration(newest))
	} else if at := c.at(newest); at.After(now) || now.Sub(at) > maxClockLag {
		c.base = now.Add(-msDuration(newest))
	}

	n := 0
	for _, ms := range timestampsMs {
		if c.anchored && ms <= c.lastMs {
			continue
		}
		c.anchored = true
		c.lastMs = ms
		frame(c.at(ms))
		n++
	}
	return n
}

func (c *frameClock) at(ms float64) time.Time {
	return c.base.Add(msDuration(ms))
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
