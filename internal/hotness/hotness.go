// Package hotness scores how often cached queries are requested.
package hotness

type Interface interface {
	Inc(key string)
	Score(key string) float64
	Reset(keys ...string)
}

// Ranker lists the hottest keys, hottest first.
type Ranker interface {
	Interface
	Top(n int, minScore float64) []string
}
