package ports

// Scorer maps true labels and positive-class scores to a real value.
// Higher is better.
type Scorer interface {
	Name() string
	Score(yTrue, yScore []float64) (float64, error)
}
