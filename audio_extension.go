package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

// AudioExtensionParams contains audio stream parameters (from the source, not user-configurable)
type AudioExtensionParams struct {
	SampleRate    int // Hz (e.g., 48000)
	Channels      int // Always 1 (mono)
	BitsPerSample int // Always 16
}

// AudioExtension interface for extensible audio processors
type AudioExtension interface {
	// Start begins processing audio and sending results
	// audioChan: receives PCM audio samples ([]int16)
	// resultChan: sends binary result messages
	Start(audioChan <-chan []int16, resultChan chan<- []byte) error

	// Stop stops the extension
	Stop() error

	// GetName returns the extension name
	GetName() string
}

// statsProvider is implemented by extensions that expose decoder counters
type statsProvider interface {
	Stats() rtty.SessionStats
}

// waiter is implemented by extensions that end on their own when the audio channel closes
type waiter interface {
	Wait()
}

// AudioExtensionFactory is a function that creates a new extension instance
type AudioExtensionFactory func(audioParams AudioExtensionParams, extensionParams map[string]interface{}) (AudioExtension, error)

// AudioExtensionInfo contains metadata about a registered extension
type AudioExtensionInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Version     string                 `json:"version"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// AudioExtensionRegistry manages available audio extension types
type AudioExtensionRegistry struct {
	factories map[string]AudioExtensionFactory
	info      map[string]AudioExtensionInfo
	mu        sync.RWMutex
}

// NewAudioExtensionRegistry creates a new audio extension registry
func NewAudioExtensionRegistry() *AudioExtensionRegistry {
	return &AudioExtensionRegistry{
		factories: make(map[string]AudioExtensionFactory),
		info:      make(map[string]AudioExtensionInfo),
	}
}

// Register registers a new audio extension type
func (aer *AudioExtensionRegistry) Register(name string, factory AudioExtensionFactory, info AudioExtensionInfo) {
	aer.mu.Lock()
	defer aer.mu.Unlock()

	aer.factories[name] = factory
	aer.info[name] = info
}

// Create creates a new audio extension instance
func (aer *AudioExtensionRegistry) Create(name string, audioParams AudioExtensionParams, extensionParams map[string]interface{}) (AudioExtension, error) {
	aer.mu.RLock()
	factory, exists := aer.factories[name]
	aer.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("audio extension not found: %s", name)
	}

	return factory(audioParams, extensionParams)
}

// List returns information about all registered audio extensions, sorted by name
func (aer *AudioExtensionRegistry) List() []AudioExtensionInfo {
	aer.mu.RLock()
	defer aer.mu.RUnlock()

	list := make([]AudioExtensionInfo, 0, len(aer.info))
	for _, info := range aer.info {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	return list
}

// Exists checks if an audio extension is registered
func (aer *AudioExtensionRegistry) Exists(name string) bool {
	aer.mu.RLock()
	defer aer.mu.RUnlock()

	_, exists := aer.factories[name]
	return exists
}

// checkExtension reports an unknown decoder name together with the registered ones
func checkExtension(aer *AudioExtensionRegistry, name string) error {
	if aer.Exists(name) {
		return nil
	}
	names := make([]string, 0)
	for _, info := range aer.List() {
		names = append(names, info.Name)
	}
	return fmt.Errorf("unknown decoder extension %q (available: %s)", name, strings.Join(names, ", "))
}

// registerBuiltinExtensions registers the decoders compiled into this binary
func registerBuiltinExtensions(aer *AudioExtensionRegistry, logger *log.Logger) {
	info := rtty.GetInfo()
	params, _ := info["parameters"].(map[string]interface{})

	aer.Register("rtty", func(audioParams AudioExtensionParams, extensionParams map[string]interface{}) (AudioExtension, error) {
		ext, err := rtty.Factory(rtty.AudioParams{
			SampleRate:    audioParams.SampleRate,
			Channels:      audioParams.Channels,
			BitsPerSample: audioParams.BitsPerSample,
		}, extensionParams, rtty.WithLogger(logger.WithPrefix("rtty")))
		if err != nil {
			return nil, err
		}
		return ext, nil
	}, AudioExtensionInfo{
		Name:        "rtty",
		Description: fmt.Sprint(info["description"]),
		Version:     fmt.Sprint(info["version"]),
		Parameters:  params,
	})
}
