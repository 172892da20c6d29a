package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

func TestRegistryBuiltins(t *testing.T) {
	reg := NewAudioExtensionRegistry()
	registerBuiltinExtensions(reg, quietLogger())

	assert.True(t, reg.Exists("rtty"))
	assert.False(t, reg.Exists("navtex"))

	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, "rtty", list[0].Name)
	assert.NotEmpty(t, list[0].Description)
	assert.Contains(t, list[0].Parameters, "mark_freq")
}

func TestCheckExtension(t *testing.T) {
	reg := NewAudioExtensionRegistry()
	registerBuiltinExtensions(reg, quietLogger())

	require.NoError(t, checkExtension(reg, "rtty"))

	err := checkExtension(reg, "navtex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"navtex"`)
	assert.Contains(t, err.Error(), "available: rtty")
}

func TestRegistryCreate(t *testing.T) {
	reg := NewAudioExtensionRegistry()
	registerBuiltinExtensions(reg, quietLogger())

	ext, err := reg.Create("rtty", AudioExtensionParams{SampleRate: 48000, Channels: 1, BitsPerSample: 16},
		map[string]interface{}{"baud": 50})
	require.NoError(t, err)
	assert.Equal(t, "rtty", ext.GetName())
	_, ok := ext.(statsProvider)
	assert.True(t, ok)
	_, ok = ext.(waiter)
	assert.True(t, ok)

	_, err = reg.Create("rtty", AudioExtensionParams{SampleRate: 48000, Channels: 2, BitsPerSample: 16}, nil)
	assert.Error(t, err)

	ext, err = reg.Create("rtty", AudioExtensionParams{SampleRate: 48000, Channels: 1, BitsPerSample: 16},
		map[string]interface{}{"baud": "fast"})
	assert.Error(t, err)
	assert.Nil(t, ext, "failed creation returns a nil interface")

	_, err = reg.Create("sstv", AudioExtensionParams{SampleRate: 48000, Channels: 1, BitsPerSample: 16}, nil)
	assert.Error(t, err)
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewAudioExtensionRegistry()
	noop := func(AudioExtensionParams, map[string]interface{}) (AudioExtension, error) { return nil, nil }
	reg.Register("zeta", noop, AudioExtensionInfo{Name: "zeta"})
	reg.Register("alpha", noop, AudioExtensionInfo{Name: "alpha"})
	reg.Register("mid", noop, AudioExtensionInfo{Name: "mid"})

	var names []string
	for _, info := range reg.List() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

// End to end from the registry: modulated text in, parsed text messages out
func TestRegistryExtensionDecodes(t *testing.T) {
	reg := NewAudioExtensionRegistry()
	registerBuiltinExtensions(reg, quietLogger())

	ext, err := reg.Create("rtty", AudioExtensionParams{SampleRate: 44100, Channels: 1, BitsPerSample: 16}, nil)
	require.NoError(t, err)

	cfg := rtty.DefaultConfig()
	bits, _, err := rtty.NewEncoder(nil, 2).EncodeText("RYRY DE UA", rtty.ModeLAT)
	require.NoError(t, err)
	bits = append(append(rtty.Idle(4), bits...), rtty.Idle(3)...)
	pcm := rtty.NewModulator(cfg, 0.8).Modulate(bits)

	audioChan := make(chan []int16, 64)
	resultChan := make(chan []byte, 1024)
	require.NoError(t, ext.Start(audioChan, resultChan))

	spb := cfg.SamplesPerBit()
	for len(pcm) > 0 {
		n := min(spb*3, len(pcm))
		audioChan <- pcm[:n]
		pcm = pcm[n:]
	}
	close(audioChan)
	ext.(waiter).Wait()
	require.NoError(t, ext.Stop())
	close(resultChan)

	sink := &recordingSink{}
	NewDispatcher(resultChan, nil, quietLogger(), sink).Run()

	var text string
	for _, msg := range sink.msgs {
		if msg.Type == rtty.MessageText {
			text += msg.Text
			assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Minute)
		}
	}
	assert.Equal(t, "RYRY DE UA", text)
}
