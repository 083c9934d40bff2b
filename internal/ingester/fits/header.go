package fits

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FITS headers are a sequence of 2880 byte blocks, each holding 36 card
// images of 80 characters.  The END keyword terminates the header.
const (
	blockSize       = 2880
	cardSize        = 80
	cardsPerBlock   = blockSize / cardSize
	maxHeaderBlocks = 1000
)

// Card is a single header card image, already parsed.
type Card struct {
	Keyword string
	Value   string
	Comment string
}

// Header holds the cards of a primary FITS header in file order.
type Header struct {
	cards []Card
	index map[string]int
}

// ReadHeaderFile opens path and parses its primary header.
func ReadHeaderFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	header, err := ReadHeader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading FITS header of %s", path)
	}
	return header, nil
}

// ReadHeader parses the primary header from r, which must be positioned at
// the start of the file.
func ReadHeader(r io.Reader) (*Header, error) {
	header := &Header{index: map[string]int{}}
	block := make([]byte, blockSize)
	for i := 0; i < maxHeaderBlocks; i++ {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, errors.Wrap(err, "short FITS header")
		}
		if i == 0 && !strings.HasPrefix(string(block[:cardSize]), "SIMPLE ") {
			return nil, errors.New("not a FITS file: missing SIMPLE card")
		}
		for c := 0; c < cardsPerBlock; c++ {
			image := string(block[c*cardSize : (c+1)*cardSize])
			keyword := strings.TrimRight(image[:8], " ")
			if keyword == "END" {
				return header, nil
			}
			if keyword == "" || keyword == "COMMENT" || keyword == "HISTORY" {
				continue
			}
			value, comment := parseCardValue(image)
			if _, seen := header.index[keyword]; !seen {
				header.index[keyword] = len(header.cards)
			}
			header.cards = append(header.cards, Card{Keyword: keyword, Value: value, Comment: comment})
		}
	}
	return nil, errors.New("FITS header not terminated by END")
}

// parseCardValue extracts the value and comment from a card image.  Cards
// without the "= " value indicator have no value.
func parseCardValue(image string) (string, string) {
	if len(image) < 10 || image[8:10] != "= " {
		return "", ""
	}
	rest := image[10:]
	if strings.HasPrefix(strings.TrimLeft(rest, " "), "'") {
		return parseQuotedValue(strings.TrimLeft(rest, " "))
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return strings.TrimSpace(rest[:i]), strings.TrimSpace(rest[i+1:])
	}
	return strings.TrimSpace(rest), ""
}

// parseQuotedValue handles FITS string values, where a doubled quote is an
// escaped quote and trailing spaces are not significant.
func parseQuotedValue(rest string) (string, string) {
	var value strings.Builder
	i := 1
	for i < len(rest) {
		ch := rest[i]
		if ch == '\'' {
			if i+1 < len(rest) && rest[i+1] == '\'' {
				value.WriteByte('\'')
				i += 2
				continue
			}
			break
		}
		value.WriteByte(ch)
		i++
	}
	comment := ""
	if j := strings.IndexByte(rest[i:], '/'); j >= 0 {
		comment = strings.TrimSpace(rest[i+j+1:])
	}
	return strings.TrimRight(value.String(), " "), comment
}

// Get returns the value of the first card with the given keyword.
func (h *Header) Get(keyword string) (string, bool) {
	i, ok := h.index[keyword]
	if !ok {
		return "", false
	}
	return h.cards[i].Value, true
}

// String returns the value of keyword or an error if the card is absent.
func (h *Header) String(keyword string) (string, error) {
	value, ok := h.Get(keyword)
	if !ok {
		return "", errors.Errorf("header card %s missing", keyword)
	}
	return value, nil
}

func (h *Header) Int(keyword string) (int64, error) {
	value, err := h.String(keyword)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.Errorf("header card %s is not an integer: %q", keyword, value)
	}
	return parsed, nil
}

func (h *Header) Float(keyword string) (float64, error) {
	value, err := h.String(keyword)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Errorf("header card %s is not a number: %q", keyword, value)
	}
	return parsed, nil
}

// Cards returns all cards in file order.  Keywords can repeat.
func (h *Header) Cards() []Card {
	return h.cards
}

// ValuesWithPrefix returns the values of all cards whose keyword starts with
// prefix, keyed by the keyword remainder.  Used for the RUNS<i> card family.
func (h *Header) ValuesWithPrefix(prefix string) map[string]string {
	values := map[string]string{}
	for _, card := range h.cards {
		if strings.HasPrefix(card.Keyword, prefix) && card.Keyword != prefix {
			values[card.Keyword[len(prefix):]] = card.Value
		}
	}
	return values
}
