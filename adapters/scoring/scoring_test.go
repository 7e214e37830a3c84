package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodsel/domain/core"
)

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name   string
		yTrue  []float64
		yScore []float64
		want   float64
	}{
		{"perfect", []float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []float64{0, 0, 1, 1}, []float64{0.9, 0.8, 0.2, 0.1}, 0},
		{"all tied", []float64{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"one swap", []float64{0, 0, 1, 1}, []float64{0.1, 0.6, 0.4, 0.9}, 0.75},
		{"partial tie", []float64{0, 1, 0, 1}, []float64{0.2, 0.5, 0.5, 0.9}, 0.875},
	}
	auc := ROCAUC()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auc.Score(tt.yTrue, tt.yScore)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestROCAUCSingleClassIsDegenerate(t *testing.T) {
	got, err := ROCAUC().Score([]float64{1, 1, 1}, []float64{0.2, 0.4, 0.9})
	assert.ErrorIs(t, err, core.ErrDegenerateInput)
	assert.True(t, math.IsNaN(got))
	assert.True(t, core.IsTrialFailure(err))
}

func TestLabelMetrics(t *testing.T) {
	yTrue := []float64{1, 1, 1, 0, 0, 0, 0, 0}
	yScore := []float64{0.9, 0.7, 0.2, 0.6, 0.1, 0.1, 0.3, 0.4}
	// tp=2 fn=1 fp=1 tn=4

	acc, err := Accuracy().Score(yTrue, yScore)
	require.NoError(t, err)
	assert.InDelta(t, 6.0/8.0, acc, 1e-12)

	bal, err := BalancedAccuracy().Score(yTrue, yScore)
	require.NoError(t, err)
	assert.InDelta(t, (2.0/3.0+4.0/5.0)/2, bal, 1e-12)

	m, err := MCC().Score(yTrue, yScore)
	require.NoError(t, err)
	assert.InDelta(t, (2.0*4-1*1)/math.Sqrt(3*3*5*5), m, 1e-12)

	constant, err := MCC().Score(yTrue, make([]float64, len(yTrue)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, constant)
}

func TestScoreRejectsBadInput(t *testing.T) {
	_, err := Accuracy().Score([]float64{0, 1}, []float64{0.5})
	assert.ErrorIs(t, err, core.ErrInputShape)

	_, err = Accuracy().Score([]float64{0, 1}, []float64{0.5, math.NaN()})
	assert.ErrorIs(t, err, core.ErrNumerical)
}

func TestByName(t *testing.T) {
	s, err := ByName(" ROC_AUC ")
	require.NoError(t, err)
	assert.Equal(t, "roc_auc", s.Name())

	_, err = ByName("f1")
	assert.Error(t, err)
	assert.Equal(t, []string{"accuracy", "balanced_accuracy", "mcc", "roc_auc"}, Names())
}
