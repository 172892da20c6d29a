package rtty

import (
	"fmt"
)

// AudioParams contains audio stream parameters (from the source, not user-configurable)
type AudioParams struct {
	SampleRate    int // Hz (e.g., 48000)
	Channels      int // Always 1 (mono)
	BitsPerSample int // Always 16
}

// Factory creates an RTTY extension for the given stream and user parameters
func Factory(audioParams AudioParams, extensionParams map[string]interface{}, opts ...Option) (*Extension, error) {
	if audioParams.Channels != 1 {
		return nil, fmt.Errorf("RTTY requires mono audio (got %d channels)", audioParams.Channels)
	}
	if audioParams.BitsPerSample != 16 {
		return nil, fmt.Errorf("RTTY requires 16-bit audio (got %d bits)", audioParams.BitsPerSample)
	}

	cfg, err := ConfigFromParams(audioParams.SampleRate, extensionParams)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	if cfg.SampleRate != audioParams.SampleRate {
		o.logger.Warnf("Sample rate mismatch: stream %d Hz, configured %d Hz; decoding may degrade",
			audioParams.SampleRate, cfg.SampleRate)
	}

	ext, err := NewExtension(cfg, opts...)
	if err != nil {
		return nil, err
	}

	o.logger.Infof("Created: baud=%.2f mark=%.1f Hz space=%.1f Hz rate=%d order=%d inverted=%v",
		cfg.BaudRate, cfg.MarkFreq, cfg.SpaceFreq, cfg.SampleRate, cfg.FilterOrder, cfg.Inverted)
	return ext, nil
}

// ConfigFromParams overlays user parameters on DefaultConfig. The stream sample rate is used
// unless sample_rate is given explicitly.
func ConfigFromParams(streamRate int, params map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	if streamRate > 0 {
		cfg.SampleRate = streamRate
	}

	floatParams := map[string]*float64{
		"baud":              &cfg.BaudRate,
		"mark_freq":         &cfg.MarkFreq,
		"space_freq":        &cfg.SpaceFreq,
		"half_width":        &cfg.HalfWidth,
		"stream_half_width": &cfg.StreamHalfWidth,
		"hysteresis":        &cfg.Hysteresis,
	}
	for name, dst := range floatParams {
		v, ok := params[name]
		if !ok {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return cfg, fmt.Errorf("parameter %s: expected number, got %T", name, v)
		}
		*dst = f
	}

	intParams := map[string]*int{
		"sample_rate": &cfg.SampleRate,
		"order":       &cfg.FilterOrder,
	}
	for name, dst := range intParams {
		v, ok := params[name]
		if !ok {
			continue
		}
		f, ok := toFloat(v)
		if !ok || f != float64(int(f)) {
			return cfg, fmt.Errorf("parameter %s: expected integer, got %v", name, v)
		}
		*dst = int(f)
	}

	if v, ok := params["inverted"]; ok {
		b, ok := v.(bool)
		if !ok {
			return cfg, fmt.Errorf("parameter inverted: expected boolean, got %T", v)
		}
		cfg.Inverted = b
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// GetInfo returns extension metadata
func GetInfo() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"name":        "rtty",
		"description": "RTTY decoder for ITA2 / MTK-2 teletype traffic (LAT, RUS, FIGS)",
		"version":     "1.0.0",
		"parameters": map[string]interface{}{
			"baud": map[string]interface{}{
				"type":        "number",
				"description": "Baud rate",
				"default":     def.BaudRate,
			},
			"mark_freq": map[string]interface{}{
				"type":        "number",
				"description": "Mark tone in Hz",
				"default":     def.MarkFreq,
			},
			"space_freq": map[string]interface{}{
				"type":        "number",
				"description": "Space tone in Hz",
				"default":     def.SpaceFreq,
			},
			"order": map[string]interface{}{
				"type":        "integer",
				"description": "Butterworth filter order",
				"default":     def.FilterOrder,
				"min":         1,
				"max":         10,
			},
			"stream_half_width": map[string]interface{}{
				"type":        "number",
				"description": "Band half-width in Hz",
				"default":     def.StreamHalfWidth,
			},
			"hysteresis": map[string]interface{}{
				"type":        "number",
				"description": "Hold the previous bit when |mark-space| < h*(mark+space); 0 disables",
				"default":     def.Hysteresis,
			},
			"inverted": map[string]interface{}{
				"type":        "boolean",
				"description": "Swap mark and space",
				"default":     false,
			},
		},
		"output_format": map[string]interface{}{
			"type": "binary",
			"protocol": map[string]interface{}{
				"text_message": map[string]interface{}{
					"type":   MessageText,
					"format": "[type:1][timestamp:8][text_length:4][text:length]",
				},
				"mode_update": map[string]interface{}{
					"type":   MessageMode,
					"format": "[type:1][mode:1]",
				},
				"signal_level": map[string]interface{}{
					"type":   MessageLevel,
					"format": "[type:1][mark_energy:8][space_energy:8]",
				},
			},
		},
	}
}
