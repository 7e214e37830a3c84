package testkit

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestClassificationGenerator_Basic(t *testing.T) {
	config := DefaultClassificationConfig()
	ds, err := NewClassificationGenerator(config).Generate()
	if err != nil {
		t.Fatalf("Failed to generate dataset: %v", err)
	}

	rows, cols := ds.X.Dims()
	if rows != config.Samples || cols != config.Features {
		t.Errorf("Expected %dx%d matrix, got %dx%d", config.Samples, config.Features, rows, cols)
	}
	if len(ds.Y) != rows {
		t.Errorf("Expected %d targets, got %d", rows, len(ds.Y))
	}

	pos := 0
	for _, v := range ds.Y {
		if v == 1 {
			pos++
		}
	}
	if pos != 30 {
		t.Errorf("Expected 30 positives, got %d", pos)
	}
}

func TestClassificationGenerator_Deterministic(t *testing.T) {
	a := MustGenerate(DefaultClassificationConfig())
	b := MustGenerate(DefaultClassificationConfig())
	if !mat.Equal(a.X, b.X) {
		t.Error("Expected identical feature matrices for the same seed")
	}
	for i := range a.Y {
		if a.Y[i] != b.Y[i] {
			t.Fatalf("Target %d differs between runs", i)
		}
	}
}

func TestClassificationGenerator_InformativeShift(t *testing.T) {
	ds := MustGenerate(ClassificationGeneratorConfig{
		Samples: 400, Features: 2, Informative: 1, Separation: 3, PositiveShare: 0.5, Seed: 1,
	})
	var sum [2]float64
	var count [2]float64
	for i, v := range ds.Y {
		c := int(v)
		sum[c] += ds.X.At(i, 0)
		count[c]++
	}
	if gap := sum[1]/count[1] - sum[0]/count[0]; gap < 2 {
		t.Errorf("Expected informative column to separate classes, mean gap %.2f", gap)
	}
}

func TestClassificationGenerator_RejectsBadConfig(t *testing.T) {
	if _, err := NewClassificationGenerator(ClassificationGeneratorConfig{Samples: 1, Features: 1}).Generate(); err == nil {
		t.Error("Expected error for a single sample")
	}
	if _, err := NewClassificationGenerator(ClassificationGeneratorConfig{Samples: 10, Features: 1, Informative: 2}).Generate(); err == nil {
		t.Error("Expected error for too many informative columns")
	}
}
