package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiseaseOrderMatchesOutputIndex(t *testing.T) {
	labels := make([]string, 0, len(Diseases))
	for i := range Diseases {
		d, ok := DiseaseAt(i)
		assert.True(t, ok)
		labels = append(labels, d.Label())
	}
	assert.Equal(t, []string{"Early Blight", "Late Blight", "Healthy"}, labels)

	_, ok := DiseaseAt(len(Diseases))
	assert.False(t, ok)
	_, ok = DiseaseAt(-1)
	assert.False(t, ok)
}

func TestRemedyIsTotal(t *testing.T) {
	for _, d := range Diseases {
		r := Remedy(d)
		assert.NotEmpty(t, r)
		assert.NotEqual(t, NoRemedy, r, d.Label())
	}
	assert.Equal(t, NoRemedy, Remedy(Disease(42)))
	assert.Equal(t, "Unknown", Disease(42).Label())
}

func TestLookupRemedy(t *testing.T) {
	assert.Contains(t, LookupRemedy("Early Blight"), "chlorothalonil or mancozeb")
	assert.Contains(t, LookupRemedy("Late Blight"), "copper or metalaxyl")
	assert.Equal(t, "No disease detected. Keep monitoring and ensure proper crop care.", LookupRemedy("Healthy"))
	assert.Equal(t, NoRemedy, LookupRemedy("Septoria Leaf Spot"))
	assert.Equal(t, NoRemedy, LookupRemedy(""))
}

func TestNewPrediction(t *testing.T) {
	p := NewPrediction(LateBlight, 0.93)
	assert.Equal(t, "Late Blight", p.Class)
	assert.Equal(t, 0.93, p.Confidence)
	assert.Equal(t, Remedy(LateBlight), p.Remedy)
}
