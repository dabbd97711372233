package chart

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSpec(kind Kind) *Spec {
	return &Spec{
		Kind:   kind,
		Title:  "Average resale price in QUEENSTOWN",
		XLabel: "Year",
		YLabel: "Average resale price (SGD)",
		Series: []Series{{
			Name: "QUEENSTOWN",
			Points: []Point{
				{X: "2020", Y: 520000},
				{X: "2021", Y: 575000},
				{X: "2022", Y: 640000},
			},
		}},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, sampleSpec(KindLine).Validate())

	var nilSpec *Spec
	assert.ErrorIs(t, nilSpec.Validate(), ErrInvalidSpec)

	bad := sampleSpec("pie")
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSpec)

	empty := sampleSpec(KindBar)
	empty.Series = nil
	assert.ErrorIs(t, empty.Validate(), ErrInvalidSpec)

	nan := sampleSpec(KindBar)
	nan.Series[0].Points[1].Y = math.NaN()
	assert.ErrorIs(t, nan.Validate(), ErrInvalidSpec)
}

func TestBoundsAndValues(t *testing.T) {
	s := sampleSpec(KindLine)
	lo, hi := s.Bounds()
	assert.Equal(t, 520000.0, lo)
	assert.Equal(t, 640000.0, hi)
	assert.Equal(t, []float64{520000, 575000, 640000}, s.Values())
}

func TestRenderSVG(t *testing.T) {
	for _, kind := range []Kind{KindLine, KindBar} {
		t.Run(string(kind), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RenderSVG(&buf, sampleSpec(kind)))
			out := buf.String()
			assert.True(t, strings.HasPrefix(out, "<svg"))
			assert.Contains(t, out, "Average resale price in QUEENSTOWN")
			assert.Contains(t, out, "2021")
			if kind == KindLine {
				assert.Contains(t, out, "<polyline")
			} else {
				assert.Contains(t, out, "<rect x=")
			}
		})
	}
}

func TestRenderSVGEscapesLabels(t *testing.T) {
	s := sampleSpec(KindBar)
	s.Title = "<script>alert(1)</script>"
	var buf bytes.Buffer
	require.NoError(t, RenderSVG(&buf, s))
	assert.NotContains(t, buf.String(), "<script>")
}

func TestRenderSVGRejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	err := RenderSVG(&buf, &Spec{Kind: KindLine})
	assert.ErrorIs(t, err, ErrInvalidSpec)
	assert.Zero(t, buf.Len())
}

func TestRenderText(t *testing.T) {
	out, err := RenderText(sampleSpec(KindBar), 80)
	require.NoError(t, err)
	assert.Contains(t, out, "2020")
	assert.Contains(t, out, "640k")
	assert.Contains(t, out, "█")
}
