package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

// transcriptEncoding maps a charset name to an encoding; nil means UTF-8
func transcriptEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "koi8-r", "koi8r":
		return charmap.KOI8R, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", name)
}

// TranscriptLog writes decoded text to daily files under dataDir/YYYY/MM/DD/
type TranscriptLog struct {
	dataDir  string
	encoder  *encoding.Encoder // nil writes UTF-8
	compress bool
	metrics  *PrometheusMetrics
	logger   *log.Logger

	fileMu      sync.Mutex
	openFile    *os.File
	zw          *zstd.Encoder
	w           io.Writer
	currentDay  string
	atLineStart bool
}

// NewTranscriptLog creates the data directory and a log writing in charset
func NewTranscriptLog(cfg TranscriptConfig, metrics *PrometheusMetrics, logger *log.Logger) (*TranscriptLog, error) {
	enc, err := transcriptEncoding(cfg.Charset)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	tl := &TranscriptLog{
		dataDir:     cfg.Dir,
		compress:    cfg.Compress,
		metrics:     metrics,
		logger:      logger,
		atLineStart: true,
	}
	if enc != nil {
		tl.encoder = encoding.ReplaceUnsupported(enc.NewEncoder())
	}

	logger.Infof("Transcript log initialized: dir=%s, charset=%s, compress=%v", cfg.Dir, cfg.Charset, cfg.Compress)
	return tl, nil
}

// HandleMessage implements ResultSink
func (tl *TranscriptLog) HandleMessage(msg rtty.Message) {
	if msg.Type != rtty.MessageText {
		return
	}
	err := tl.Write(msg.Timestamp, msg.Text)
	tl.metrics.RecordTranscriptWrite(err)
	if err != nil {
		tl.logger.Errorf("Transcript write failed: %v", err)
	}
}

// Write appends a text fragment, stamping every line that starts in it with timestamp
func (tl *TranscriptLog) Write(timestamp time.Time, text string) error {
	if text == "" {
		return nil
	}

	tl.fileMu.Lock()
	defer tl.fileMu.Unlock()

	w, err := tl.getOrCreateWriter(timestamp)
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, r := range text {
		if tl.atLineStart {
			b.WriteString(timestamp.UTC().Format("15:04:05 "))
			tl.atLineStart = false
		}
		b.WriteRune(r)
		if r == '\n' {
			tl.atLineStart = true
		}
	}

	out := b.String()
	if tl.encoder != nil {
		if out, err = tl.encoder.String(out); err != nil {
			return fmt.Errorf("failed to encode transcript text: %w", err)
		}
	}

	if _, err := io.WriteString(w, out); err != nil {
		return err
	}
	if tl.zw != nil {
		return tl.zw.Flush()
	}
	return nil
}

// getOrCreateWriter rotates to the file for timestamp's day
// File path structure: base_dir/YYYY/MM/DD/rtty.txt[.zst]
func (tl *TranscriptLog) getOrCreateWriter(timestamp time.Time) (io.Writer, error) {
	ts := timestamp.UTC()
	dateStr := ts.Format("2006-01-02")
	if tl.currentDay == dateStr && tl.w != nil {
		return tl.w, nil
	}

	if err := tl.closeFile(); err != nil {
		tl.logger.Warnf("Error closing previous transcript: %v", err)
	}

	dirPath := filepath.Join(
		tl.dataDir,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
	)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory structure: %w", err)
	}

	filename := filepath.Join(dirPath, tl.fileName())
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}

	tl.openFile = file
	tl.w = file
	if tl.compress {
		// Appending starts a new zstd frame; concatenated frames decode as one stream
		zw, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			file.Close()
			tl.openFile, tl.w = nil, nil
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		tl.zw = zw
		tl.w = zw
	}
	tl.currentDay = dateStr
	tl.atLineStart = true

	tl.logger.Debugf("Transcript file: %s", filename)
	return tl.w, nil
}

func (tl *TranscriptLog) fileName() string {
	if tl.compress {
		return "rtty.txt.zst"
	}
	return "rtty.txt"
}

func (tl *TranscriptLog) closeFile() error {
	var firstErr error
	if tl.zw != nil {
		firstErr = tl.zw.Close()
		tl.zw = nil
	}
	if tl.openFile != nil {
		if err := tl.openFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		tl.openFile = nil
	}
	tl.w = nil
	tl.currentDay = ""
	return firstErr
}

// Close flushes and closes the open file
func (tl *TranscriptLog) Close() error {
	tl.fileMu.Lock()
	defer tl.fileMu.Unlock()
	return tl.closeFile()
}
