package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/proctriage/internal/model"
)

type gpuTagEnricher struct {
	name string
	tag  float64
}

func (g gpuTagEnricher) Name() string { return g.name }

func (g gpuTagEnricher) Enrich(_ model.ProcessRecord, ev model.Evidence) model.Evidence {
	v := g.tag
	ev.GPUSignal = &v
	return ev
}

type panickingEnricher struct{ name string }

func (p panickingEnricher) Name() string { return p.name }

func (panickingEnricher) Enrich(_ model.ProcessRecord, _ model.Evidence) model.Evidence {
	panic("boom")
}

func TestRegisterAndGetEnricher(t *testing.T) {
	RegisterEnricher(gpuTagEnricher{name: "lookup-tagger", tag: 0.5})
	e, err := GetEnricher("lookup-tagger")
	require.NoError(t, err)
	assert.Equal(t, "lookup-tagger", e.Name())
}

func TestRegisterEnricher_DuplicatePanics(t *testing.T) {
	RegisterEnricher(gpuTagEnricher{name: "dup-tagger", tag: 1})
	assert.Panics(t, func() { RegisterEnricher(gpuTagEnricher{name: "dup-tagger", tag: 2}) })
}

func TestGetEnricher_UnknownNameErrors(t *testing.T) {
	_, err := GetEnricher("does-not-exist")
	assert.Error(t, err)
}

func TestBuildWithEnrichers_AppliesNamedEnricher(t *testing.T) {
	RegisterEnricher(gpuTagEnricher{name: "apply-tagger", tag: 0.75})
	rec := model.ProcessRecord{PID: 1, State: model.StateRunning}

	ev, err := BuildWithEnrichers(rec, nil, []string{"apply-tagger"})
	require.NoError(t, err)
	require.NotNil(t, ev.GPUSignal)
	assert.InDelta(t, 0.75, *ev.GPUSignal, 1e-9)
}

func TestBuildWithEnrichers_PanickingEnricherIsIsolated(t *testing.T) {
	RegisterEnricher(panickingEnricher{name: "panic-enricher"})
	rec := model.ProcessRecord{PID: 1, State: model.StateRunning}

	ev, err := BuildWithEnrichers(rec, nil, []string{"panic-enricher"})
	require.NoError(t, err)
	assert.Nil(t, ev.GPUSignal)
}

func TestBuildWithEnrichers_UnknownNameErrors(t *testing.T) {
	rec := model.ProcessRecord{PID: 1}
	_, err := BuildWithEnrichers(rec, nil, []string{"nope"})
	assert.Error(t, err)
}
