package imgseq

import (
	"math"
	"sort"
	"time"
)

// TimeRange is the half open span [Start, End) covered by one or more
// consecutive frames.
type TimeRange struct {
	Start, End time.Duration
}

func frameTime(index int, fps float64) time.Duration {
	return time.Duration(math.Ceil(float64(index) * float64(time.Second) / fps))
}

func frameAt(t time.Duration, fps float64) int {
	return int(math.Floor(float64(t.Nanoseconds()) * fps / float64(time.Second)))
}

func timeRanges(indices []int, fps float64) []TimeRange {
	if len(indices) == 0 || fps <= 0 {
		return nil
	}

	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)

	ranges := []TimeRange{}
	first, last := sorted[0], sorted[0]
	for _, index := range sorted[1:] {
		if index == last || index == last+1 {
			last = index
			continue
		}
		ranges = append(ranges, TimeRange{Start: frameTime(first, fps), End: frameTime(last+1, fps)})
		first, last = index, index
	}
	return append(ranges, TimeRange{Start: frameTime(first, fps), End: frameTime(last+1, fps)})
}
