package protocol

import "fmt"

// phase is a state of the frame parser. Parsing walks the phases strictly
// forward, one input byte at a time.
type phase uint8

const (
	phaseIdle      phase = iota // skipping whitespace before the opening '#'
	phaseTypeMatch              // matching the msg/sub/unsub keyword
	phaseTypeClose              // expecting the '#' after the keyword
	phaseFieldOpen              // first byte of a field, must not be '#'
	phaseFieldScan              // inside a field, looking for its closing '#'
	phaseDone
)

var keywords = map[byte]struct {
	word   string
	kind   Kind
	fields int
}{
	'm': {"msg", KindStandard, 3},
	's': {"sub", KindSubscribe, 2},
	'u': {"unsub", KindUnsubscribe, 2},
}

var fieldNames = [...]string{"client-id", "topic", "body"}

// Decoder parses nanoPubSub frames. The zero value ignores any bytes that
// follow a complete frame.
type Decoder struct {
	// Strict rejects trailing bytes other than ASCII whitespace
	Strict bool
}

// Parse decodes a single frame with the default (non-strict) Decoder
func Parse(data []byte) (Message, error) {
	return Decoder{}.Parse(data)
}

// Parse decodes a single frame from data. On error the returned Message is
// always nil. Field strings are copied, so data may be reused afterwards.
func (d Decoder) Parse(data []byte) (Message, error) {
	if len(data) > MaxMessageLength {
		return nil, fmt.Errorf("%w: got %d bytes", ErrOversizedInput, len(data))
	}

	var (
		p       = phaseIdle
		keyword string
		matched int
		kind    Kind
		want    int // number of fields the kind carries
		fields  [3]string
		field   int // index of the field being read
		start   int // offset of the current field's first byte
		pos     int
	)

	for pos = 0; pos < len(data) && p != phaseDone; pos++ {
		c := data[pos]

		switch p {
		case phaseIdle:
			if c == Delimiter {
				p = phaseTypeMatch
			} else if !isSpace(c) {
				return nil, parseError(pos, p, field, fmt.Sprintf("unexpected byte %q before frame start", c))
			}

		case phaseTypeMatch:
			c = toLower(c)
			if keyword == "" {
				kw, ok := keywords[c]
				if !ok {
					return nil, parseError(pos, p, field, fmt.Sprintf("unknown keyword starting with %q", data[pos]))
				}
				keyword, kind, want = kw.word, kw.kind, kw.fields
			} else if c != keyword[matched] {
				return nil, parseError(pos, p, field, fmt.Sprintf("unexpected byte %q in keyword %q", data[pos], keyword))
			}
			matched++
			if matched == len(keyword) {
				p = phaseTypeClose
			}

		case phaseTypeClose:
			if c != Delimiter {
				return nil, parseError(pos, p, field, fmt.Sprintf("keyword %q not followed by delimiter", keyword))
			}
			p = phaseFieldOpen

		case phaseFieldOpen:
			if c == Delimiter {
				return nil, parseError(pos, p, field, "empty field")
			}
			start = pos
			p = phaseFieldScan

		case phaseFieldScan:
			if c != Delimiter {
				continue
			}
			fields[field] = string(data[start:pos])
			field++
			if field == want {
				p = phaseDone
			} else {
				p = phaseFieldOpen
			}
		}
	}

	if p != phaseDone {
		return nil, parseError(len(data), p, field, "truncated frame")
	}

	if d.Strict {
		for i := pos; i < len(data); i++ {
			if !isSpace(data[i]) {
				return nil, &ParseError{Offset: i, Phase: "trailer", Reason: fmt.Sprintf("unexpected byte %q after frame end", data[i])}
			}
		}
	}

	switch kind {
	case KindStandard:
		return &Standard{ClientID: fields[0], Topic: fields[1], Body: fields[2]}, nil
	case KindSubscribe:
		return &Subscribe{ClientID: fields[0], Topic: fields[1]}, nil
	default:
		return &Unsubscribe{ClientID: fields[0], Topic: fields[1]}, nil
	}
}

func parseError(offset int, p phase, field int, reason string) *ParseError {
	return &ParseError{Offset: offset, Phase: phaseName(p, field), Reason: reason}
}

func phaseName(p phase, field int) string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseTypeMatch:
		return "type-match"
	case phaseTypeClose:
		return "type-close"
	case phaseFieldOpen, phaseFieldScan:
		return fieldNames[field]
	default:
		return "done"
	}
}

// isSpace matches the C locale's isspace
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
