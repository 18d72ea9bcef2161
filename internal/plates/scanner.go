package plates

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// ScanError reports a malformed document. Records emitted before the error
// remain valid; callers can skip the rest of the entry and continue.
type ScanError struct {
	Entry  string
	Offset int64 // byte position in the decompressed stream
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s at byte %d: %v", e.Entry, e.Offset, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// ScanOptions names the XML elements the scanner recognizes.
type ScanOptions struct {
	RecordElement string // element delimiting one vehicle record
	PlateElement  string // nested element whose text is the plate
}

// scanState is the position of the scanner relative to the elements of
// interest. State is per Scan call; a truncated document in one entry never
// leaks state into the next.
type scanState int

const (
	stateOutside  scanState = iota // not inside a record element
	stateInRecord                  // inside a record, outside the plate element
	stateInField                   // inside the plate element
)

// Scanner extracts plate records from a byte stream of XML, one token at a
// time. The whole document is never held in memory; each record is emitted
// as soon as its closing tag is seen, so arbitrarily large documents work.
type Scanner struct {
	opts ScanOptions
	now  func() time.Time
}

// NewScanner creates a Scanner. Zero-value option fields fall back to the
// DMR dump's element names.
func NewScanner(opts ScanOptions) *Scanner {
	if opts.RecordElement == "" {
		opts.RecordElement = "Vehicle"
	}
	if opts.PlateElement == "" {
		opts.PlateElement = "LicensePlate"
	}
	return &Scanner{opts: opts, now: time.Now}
}

// Scan reads XML tokens from r and calls emit for every record element that
// closed with a non-empty plate text. Unknown elements are ignored. A clean
// EOF ends the scan without error; a malformed token returns a *ScanError
// after all records seen so far have been emitted.
func (s *Scanner) Scan(r io.Reader, entryName string, emit func(Record)) error {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "scan: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	state := stateOutside
	pending := ""

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &ScanError{Entry: entryName, Offset: dec.InputOffset(), Err: err}
		}

		state, pending = s.transition(state, pending, tok, emit)
	}
}

// transition applies one token to the scan state and returns the new state
// and pending plate text.
func (s *Scanner) transition(state scanState, pending string, tok xml.Token, emit func(Record)) (scanState, string) {
	switch t := tok.(type) {
	case xml.StartElement:
		if t.Name.Local == s.opts.RecordElement {
			return stateInRecord, ""
		}
		if t.Name.Local == s.opts.PlateElement && state == stateInRecord {
			return stateInField, pending
		}

	case xml.CharData:
		if state == stateInField {
			if text := strings.TrimSpace(string(t)); text != "" {
				return state, text
			}
		}

	case xml.EndElement:
		switch t.Name.Local {
		case s.opts.PlateElement:
			if state == stateInField {
				return stateInRecord, pending
			}
		case s.opts.RecordElement:
			if pending != "" {
				emit(Record{Plate: pending, ObservedAt: s.now()})
			}
			return stateOutside, ""
		}
	}

	return state, pending
}
