// Package fitstest builds minimal FITS files for tests.
package fitstest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	blockSize = 2880
	cardSize  = 80
)

// EncodeCards builds a primary header byte stream from card images, padding
// each to 80 characters and the whole header to full blocks.
func EncodeCards(cards ...string) []byte {
	var b bytes.Buffer
	for _, card := range cards {
		b.WriteString(card)
		b.WriteString(strings.Repeat(" ", cardSize-len(card)))
	}
	b.WriteString("END")
	b.WriteString(strings.Repeat(" ", cardSize-3))
	for b.Len()%blockSize != 0 {
		b.WriteByte(' ')
	}
	return b.Bytes()
}

// Card formats a keyword and value as a FITS card image.  Strings are quoted,
// everything else is rendered as-is in the fixed value field.
func Card(keyword string, value interface{}) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%-8s= '%s'", keyword, strings.ReplaceAll(v, "'", "''"))
	default:
		return fmt.Sprintf("%-8s= %20v", keyword, v)
	}
}

// WriteFile writes a FITS file containing only a primary header to dir.
func WriteFile(dir string, name string, cards ...string) (string, error) {
	all := append([]string{"SIMPLE  =                    T"}, cards...)
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, EncodeCards(all...), 0o644)
}
