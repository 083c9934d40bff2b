package filetypes

import (
	"regexp"
	"strings"

	"github.com/weaveproject/weaveio/internal/ingester/fits"
)

// FileType identifies which pipeline product a file holds.
type FileType string

const (
	FileTypeRaw           FileType = "raw"
	FileTypeL1Single      FileType = "l1single"
	FileTypeL1Stack       FileType = "l1stack"
	FileTypeL1SuperStack  FileType = "l1superstack"
	FileTypeL1SuperTarget FileType = "l1supertarget"
	FileTypeL2            FileType = "l2"
)

type matcher struct {
	fileType FileType
	pattern  *regexp.Regexp
}

// Matchers are checked in order, most specific first: L2 products carry an
// aps suffix that would otherwise also match the L1 patterns.
var matchers = []matcher{
	{FileTypeL2, regexp.MustCompile(`aps\.fits?$`)},
	{FileTypeL1SuperStack, regexp.MustCompile(`^superstacked_.*\.fits?$`)},
	{FileTypeL1Stack, regexp.MustCompile(`^stacked_.*\.fits?$`)},
	{FileTypeL1Single, regexp.MustCompile(`^single_.*\.fits?$`)},
	{FileTypeL1SuperTarget, regexp.MustCompile(`^[Lm]?WVE_.*\.fits?$`)},
	{FileTypeRaw, regexp.MustCompile(`^r\d+\.fits?$`)},
}

// Match classifies a file by name.  Returns false for files that are not
// recognized pipeline products.
func Match(filename string) (FileType, bool) {
	for _, m := range matchers {
		if m.pattern.MatchString(filename) {
			return m.fileType, true
		}
	}
	return "", false
}

// HasRunList reports whether files of this type carry the RUNS<i> card
// family naming the runs they were built from.
func (t FileType) HasRunList() bool {
	switch t {
	case FileTypeL1Stack, FileTypeL1SuperStack, FileTypeL1SuperTarget, FileTypeL2:
		return true
	}
	return false
}

// CheckMOS reports whether the observation was taken in MOS mode.  LIFU and
// mIFU products are skipped during ingest.
func CheckMOS(header *fits.Header) bool {
	mode, ok := header.Get("OBSMODE")
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(mode), "MOS")
}
