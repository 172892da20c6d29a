package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

func TestRenderDecodes(t *testing.T) {
	cfg := rtty.DefaultConfig()
	pcm, err := render(cfg, signalParams{
		text:      "CQ DE UA3",
		startMode: rtty.ModeLAT,
		stopBits:  2,
		amplitude: 0.8,
		leadBits:  4,
	})
	require.NoError(t, err)
	assert.Zero(t, len(pcm)%cfg.SamplesPerBit())

	dec, err := rtty.NewBatchDecoder(cfg)
	require.NoError(t, err)
	res, err := dec.Decode(context.Background(), rtty.InMemorySamples(rtty.SamplesFromInt16(pcm, cfg.SampleRate)))
	require.NoError(t, err)
	assert.Equal(t, "CQ DE UA3", res.Text)
}

func TestRenderNoiseIsSeeded(t *testing.T) {
	cfg := rtty.DefaultConfig()
	p := signalParams{text: "RY", startMode: rtty.ModeLAT, stopBits: 2, amplitude: 0.5, noise: 0.05, seed: 7, leadBits: 2}

	a, err := render(cfg, p)
	require.NoError(t, err)
	b, err := render(cfg, p)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	p.noise = 0
	clean, err := render(cfg, p)
	require.NoError(t, err)
	assert.NotEqual(t, clean, a)
}

func TestRenderRejectsUnknownText(t *testing.T) {
	_, err := render(rtty.DefaultConfig(), signalParams{text: "QTH 45", startMode: rtty.ModeLAT, stopBits: 2, amplitude: 0.5})
	assert.Error(t, err)
}
