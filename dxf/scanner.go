package dxf

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/binzume/modelview/source"
)

type pair struct {
	code  int
	value string
	line  int // line of the group code
}

// scanner reads group code / value line pairs. Errors are sticky.
type scanner struct {
	s      *bufio.Scanner
	line   int
	peeked *pair
	err    error
}

func newScanner(r io.Reader) *scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &scanner{s: s}
}

func (s *scanner) scanLine() bool {
	if !s.s.Scan() {
		if err := s.s.Err(); err != nil && s.err == nil {
			s.err = &source.ParseError{Format: source.FormatDrafting, Line: s.line, Reason: "read", Err: err}
		}
		return false
	}
	s.line++
	return true
}

// next returns the next pair. ok is false at end of input or after an error.
func (s *scanner) next() (pair, bool) {
	if s.peeked != nil {
		p := *s.peeked
		s.peeked = nil
		return p, true
	}
	if s.err != nil {
		return pair{}, false
	}
	var text string
	for {
		if !s.scanLine() {
			return pair{}, false
		}
		text = strings.TrimSpace(s.s.Text())
		if text != "" {
			break
		}
	}
	codeLine := s.line
	code, err := strconv.Atoi(text)
	if err != nil {
		s.err = &source.ParseError{Format: source.FormatDrafting, Line: codeLine, Reason: "invalid group code " + strconv.Quote(text), Err: err}
		return pair{}, false
	}
	if !s.scanLine() {
		if s.err == nil {
			s.err = source.Errorf(source.FormatDrafting, codeLine, "group %d: value missing", code)
		}
		return pair{}, false
	}
	return pair{code: code, value: strings.TrimSpace(s.s.Text()), line: codeLine}, true
}

func (s *scanner) peek() (pair, bool) {
	p, ok := s.next()
	if ok {
		s.peeked = &p
	}
	return p, ok
}

var codePages = map[string]encoding.Encoding{
	"ANSI_874":  charmap.Windows874,
	"ANSI_932":  japanese.ShiftJIS,
	"ANSI_936":  simplifiedchinese.GBK,
	"ANSI_949":  korean.EUCKR,
	"ANSI_950":  traditionalchinese.Big5,
	"ANSI_1250": charmap.Windows1250,
	"ANSI_1251": charmap.Windows1251,
	"ANSI_1252": charmap.Windows1252,
	"ANSI_1253": charmap.Windows1253,
	"ANSI_1254": charmap.Windows1254,
	"ANSI_1255": charmap.Windows1255,
	"ANSI_1256": charmap.Windows1256,
	"ANSI_1257": charmap.Windows1257,
	"ANSI_1258": charmap.Windows1258,
	"DOS437":    charmap.CodePage437,
	"DOS850":    charmap.CodePage850,
	"DOS866":    charmap.CodePage866,
	"ISO8859-1": charmap.ISO8859_1,
}

// utf8Version is the first drawing version (AutoCAD 2007) stored as UTF-8.
const utf8Version = "AC1021"

// headerVars returns $ACADVER and $DWGCODEPAGE without decoding the payload.
// Header variables are ASCII in every code page.
func headerVars(data []byte) (version, codePage string) {
	s := newScanner(bytes.NewReader(data))
	var name string
	for {
		p, ok := s.next()
		if !ok {
			return
		}
		switch {
		case p.code == 0 && (p.value == "ENDSEC" || p.value == "EOF"):
			return
		case p.code == 9:
			name = p.value
		case name == "$ACADVER" && p.code == 1:
			version = p.value
		case name == "$DWGCODEPAGE" && p.code == 3:
			codePage = p.value
		}
	}
}

// detectEncoding returns the decoder for data, or nil when data is UTF-8.
func detectEncoding(data []byte) (version, codePage string, enc encoding.Encoding) {
	version, codePage = headerVars(data)
	if version >= utf8Version {
		return version, codePage, nil
	}
	if e, ok := codePages[strings.ToUpper(codePage)]; ok {
		return version, codePage, e
	}
	if utf8.Valid(data) {
		return version, codePage, nil
	}
	return version, codePage, charmap.Windows1252
}
