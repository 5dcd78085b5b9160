package configdef

func HasDupSequenceTitles(sequences []Sequence) bool {
	return hasDupSequenceTitles(sequences)
}
