package entity

// Algorithm is the selection strategy used by a proxy pool.
type Algorithm string

const (
	AlgorithmRandom     Algorithm = "random"
	AlgorithmRoundRobin Algorithm = "round_robin"
)

// ParseAlgorithm maps a configured value onto an Algorithm.
// "random" and the empty string select random; anything else cycles.
func ParseAlgorithm(s string) Algorithm {
	if s == "" || s == string(AlgorithmRandom) {
		return AlgorithmRandom
	}
	return AlgorithmRoundRobin
}

func (a Algorithm) String() string {
	if a == "" {
		return string(AlgorithmRandom)
	}
	return string(a)
}
