// Package scoring provides the higher-is-better metrics a run can optimise.
// Every scorer takes binary 0/1 labels and positive-class scores in [0, 1];
// label metrics threshold the scores at 0.5.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"gomodsel/domain/core"
	"gomodsel/ports"
)

// Threshold turns a positive-class score into a predicted label.
const Threshold = 0.5

type scorer struct {
	name string
	fn   func(yTrue, yScore []float64) (float64, error)
}

func (s scorer) Name() string { return s.name }

func (s scorer) Score(yTrue, yScore []float64) (float64, error) {
	if len(yTrue) != len(yScore) {
		return math.NaN(), fmt.Errorf("%w: %d labels vs %d scores", core.ErrInputShape, len(yTrue), len(yScore))
	}
	if len(yTrue) == 0 {
		return math.NaN(), fmt.Errorf("%w: nothing to score", core.ErrDegenerateInput)
	}
	for _, v := range yScore {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.NaN(), core.NewNumericalError(s.name, "non-finite prediction")
		}
	}
	return s.fn(yTrue, yScore)
}

// ROCAUC is the area under the ROC curve. Tied scores count half.
func ROCAUC() ports.Scorer { return scorer{name: "roc_auc", fn: rocAUC} }

// Accuracy is the fraction of correct labels.
func Accuracy() ports.Scorer { return scorer{name: "accuracy", fn: accuracy} }

// BalancedAccuracy is the mean of the per-class recalls.
func BalancedAccuracy() ports.Scorer { return scorer{name: "balanced_accuracy", fn: balancedAccuracy} }

// MCC is the Matthews correlation coefficient. A constant prediction scores 0.
func MCC() ports.Scorer { return scorer{name: "mcc", fn: mcc} }

var registry = map[string]func() ports.Scorer{
	"roc_auc":           ROCAUC,
	"accuracy":          Accuracy,
	"balanced_accuracy": BalancedAccuracy,
	"mcc":               MCC,
}

// ByName resolves a scorer from its configuration name.
func ByName(name string) (ports.Scorer, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown scoring %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the registered scorers.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func rocAUC(yTrue, yScore []float64) (float64, error) {
	n := len(yTrue)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return yScore[order[a]] < yScore[order[b]] })

	y := make([]float64, n)
	classes := make([]bool, n)
	var pos int
	for i, idx := range order {
		y[i] = yScore[idx]
		classes[i] = yTrue[idx] > 0.5
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == n {
		return math.NaN(), fmt.Errorf("%w: ROC AUC is undefined with one class", core.ErrDegenerateInput)
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

type confusion struct{ tp, tn, fp, fn float64 }

func confusionOf(yTrue, yScore []float64) confusion {
	var c confusion
	for i, s := range yScore {
		pred := s >= Threshold
		actual := yTrue[i] > 0.5
		switch {
		case pred && actual:
			c.tp++
		case pred && !actual:
			c.fp++
		case !pred && actual:
			c.fn++
		default:
			c.tn++
		}
	}
	return c
}

func accuracy(yTrue, yScore []float64) (float64, error) {
	c := confusionOf(yTrue, yScore)
	return (c.tp + c.tn) / float64(len(yTrue)), nil
}

func balancedAccuracy(yTrue, yScore []float64) (float64, error) {
	c := confusionOf(yTrue, yScore)
	var recalls []float64
	if c.tp+c.fn > 0 {
		recalls = append(recalls, c.tp/(c.tp+c.fn))
	}
	if c.tn+c.fp > 0 {
		recalls = append(recalls, c.tn/(c.tn+c.fp))
	}
	return stat.Mean(recalls, nil), nil
}

func mcc(yTrue, yScore []float64) (float64, error) {
	c := confusionOf(yTrue, yScore)
	den := math.Sqrt((c.tp + c.fp) * (c.tp + c.fn) * (c.tn + c.fp) * (c.tn + c.fn))
	if den == 0 {
		return 0, nil
	}
	return (c.tp*c.tn - c.fp*c.fn) / den, nil
}
