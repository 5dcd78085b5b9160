package imgseq

// desiredWindow walks away from the playhead one look-ahead step and one
// look-behind step at a time until both budgets are spent. Without loop a
// direction ends at the first or last frame, with loop it wraps. The
// playhead is only reached by wrapping all the way round, and no index
// appears twice.
func desiredWindow(playhead, numFrames, numAhead, numBehind int, playRate float64, loop bool) (ahead, behind []int) {
	if numFrames <= 0 {
		return nil, nil
	}

	step := 1
	if playRate < 0 {
		step = -1
	}

	seen := make(map[int]struct{}, numAhead+numBehind)
	add := func(side []int, index int) []int {
		if _, ok := seen[index]; ok {
			return side
		}
		seen[index] = struct{}{}
		return append(side, index)
	}

	aheadIndex, behindIndex := playhead+step, playhead-step
	aheadLeft, behindLeft := numAhead, numBehind
	for aheadLeft > 0 || behindLeft > 0 {
		if aheadLeft > 0 {
			if index, ok := boundIndex(aheadIndex, numFrames, loop); ok {
				ahead = add(ahead, index)
				aheadIndex += step
				aheadLeft--
			} else {
				aheadLeft = 0
			}
		}

		if behindLeft > 0 {
			if index, ok := boundIndex(behindIndex, numFrames, loop); ok {
				behind = add(behind, index)
				behindIndex -= step
				behindLeft--
			} else {
				behindLeft = 0
			}
		}
	}

	return ahead, behind
}

// boundIndex wraps index into [0, numFrames) when looping, otherwise
// reports whether it already lies inside.
func boundIndex(index, numFrames int, loop bool) (int, bool) {
	if index >= 0 && index < numFrames {
		return index, true
	}
	if !loop {
		return 0, false
	}
	return ((index % numFrames) + numFrames) % numFrames, true
}
