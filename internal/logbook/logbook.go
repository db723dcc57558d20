// Package logbook decodes dive-computer log exports into dives.
package logbook

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// Decoder turns one log export format into dives.
type Decoder interface {
	Decode(r io.Reader) ([]models.Dive, error)
	Extensions() []string
}

// registry maps lower-case file extensions to decoders.
var registry = map[string]Decoder{}

func register(d Decoder) {
	for _, ext := range d.Extensions() {
		registry[ext] = d
	}
}

func init() {
	register(Subsurface{})
}

// ForFile returns the decoder for a file name, by extension.
func ForFile(name string) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if d, ok := registry[ext]; ok {
		return d, nil
	}
	return nil, &models.ParseError{Sample: -1, Reason: "unsupported file type " + quoteExt(ext)}
}

// Decode picks a decoder by file name and decodes r.
func Decode(name string, r io.Reader) ([]models.Dive, error) {
	d, err := ForFile(name)
	if err != nil {
		return nil, err
	}
	return d.Decode(r)
}

// DecodeBytes decodes a raw Subsurface export held in memory.
func DecodeBytes(raw []byte) ([]models.Dive, error) {
	return Subsurface{}.Decode(bytes.NewReader(raw))
}

// SupportedExtensions lists the registered file extensions.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	return exts
}

func quoteExt(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}
