package dxf

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"golang.org/x/text/transform"

	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/source"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

type parser struct {
	s       *scanner
	doc     *Document
	skipped map[string]int
}

// Parse reads a DXF drawing in a single pass. INSERT references are kept
// unresolved; unsupported entity types are counted in Document.Warnings.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	version, codePage, enc := detectEncoding(data)
	var rd io.Reader = bytes.NewReader(data)
	if enc != nil {
		rd = transform.NewReader(rd, enc.NewDecoder())
	}

	p := &parser{s: newScanner(rd), doc: NewDocument(), skipped: map[string]int{}}
	p.doc.Version = version
	p.doc.CodePage = codePage
	if err := p.parse(); err != nil {
		return nil, err
	}

	types := make([]string, 0, len(p.skipped))
	for t := range p.skipped {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		p.warnf(0, "ignored %d %s entities", p.skipped[t], t)
	}
	return p.doc, nil
}

func (p *parser) warnf(line int, format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	if line > 0 {
		msg = fmt.Sprintf("line %d: %s", line, msg)
	}
	slog.Warn(msg, "format", "dxf")
	p.doc.Warnings = append(p.doc.Warnings, msg)
}

func (p *parser) unterminated(line int, what string) error {
	if p.s.err != nil {
		return p.s.err
	}
	return source.Errorf(source.FormatDrafting, line, "unterminated %s", what)
}

func (p *parser) parse() error {
	for {
		pr, ok := p.s.next()
		if !ok {
			// a missing EOF marker is tolerated
			return p.s.err
		}
		if pr.code != 0 {
			continue
		}
		switch pr.value {
		case "EOF":
			return nil
		case "SECTION":
			name, ok := p.s.next()
			if !ok {
				return p.unterminated(pr.line, "SECTION")
			}
			if name.code != 2 {
				return source.Errorf(source.FormatDrafting, name.line, "section name expected, got group %d", name.code)
			}
			if err := p.section(name); err != nil {
				return err
			}
		}
	}
}

func (p *parser) section(name pair) error {
	switch name.value {
	case "HEADER":
		return p.header(name)
	case "BLOCKS":
		return p.blocks(name)
	case "ENTITIES":
		entities, err := p.entities(name, "ENDSEC")
		p.doc.Entities = append(p.doc.Entities, entities...)
		return err
	default:
		for {
			pr, ok := p.s.next()
			if !ok {
				return p.unterminated(name.line, name.value+" section")
			}
			if pr.code == 0 && pr.value == "ENDSEC" {
				return nil
			}
		}
	}
}

func (p *parser) header(start pair) error {
	for {
		pr, ok := p.s.next()
		if !ok {
			return p.unterminated(start.line, "HEADER section")
		}
		if pr.code == 0 && pr.value == "ENDSEC" {
			return nil
		}
	}
}

func (p *parser) blocks(start pair) error {
	for {
		pr, ok := p.s.next()
		if !ok {
			return p.unterminated(start.line, "BLOCKS section")
		}
		if pr.code != 0 {
			continue
		}
		switch pr.value {
		case "ENDSEC":
			return nil
		case "BLOCK":
			attrs := p.attrs()
			b := &Block{Name: attrs.str(2)}
			if b.Name == "" {
				b.Name = attrs.str(3)
			}
			var err error
			if b.Base, err = attrs.point(10, 0); err != nil {
				return err
			}
			if b.Entities, err = p.entities(pr, "ENDBLK"); err != nil {
				return err
			}
			if _, exists := p.doc.Blocks[b.Name]; exists {
				p.warnf(pr.line, "duplicate block %q ignored", b.Name)
				continue
			}
			p.doc.Blocks[b.Name] = b
		default:
			p.attrs()
		}
	}
}

// entities reads entities up to the terminator entity, which is consumed with its attributes.
func (p *parser) entities(start pair, terminator string) ([]Entity, error) {
	var entities []Entity
	for {
		pr, ok := p.s.next()
		if !ok {
			return entities, p.unterminated(start.line, start.value)
		}
		if pr.code != 0 {
			continue
		}
		if pr.value == terminator {
			p.attrs()
			return entities, nil
		}
		if pr.value == "ENDSEC" || pr.value == "EOF" {
			return entities, p.unterminated(start.line, start.value)
		}
		e, err := p.entity(pr)
		if err != nil {
			return entities, err
		}
		if e != nil {
			entities = append(entities, e)
		}
	}
}

func (p *parser) entity(head pair) (Entity, error) {
	attrs := p.attrs()
	switch head.value {
	case "LINE":
		start, err := attrs.point(10, 0)
		if err != nil {
			return nil, err
		}
		end, err := attrs.point(11, 0)
		if err != nil {
			return nil, err
		}
		return &Line{Layer: attrs.str(8), Start: start, End: end}, nil
	case "LWPOLYLINE":
		return p.lwpolyline(attrs)
	case "POLYLINE":
		return p.polyline(attrs)
	case "INSERT":
		return p.insert(head, attrs)
	case "SEQEND":
		return nil, nil
	default:
		p.skipped[head.value]++
		slog.Debug("skip entity", "format", "dxf", "type", head.value, "line", head.line)
		return nil, nil
	}
}

func (p *parser) lwpolyline(attrs attrList) (Entity, error) {
	pl := &Polyline{Layer: attrs.str(8), Closed: attrs.flags(70)&1 != 0}
	elevation, err := attrs.float(38, 0)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		switch a.code {
		case 10:
			x, err := a.float()
			if err != nil {
				return nil, err
			}
			pl.Points = append(pl.Points, geom.Vector3{X: x, Z: elevation})
		case 20:
			if len(pl.Points) == 0 {
				return nil, source.Errorf(source.FormatDrafting, a.line, "LWPOLYLINE: y before x")
			}
			y, err := a.float()
			if err != nil {
				return nil, err
			}
			pl.Points[len(pl.Points)-1].Y = y
		}
	}
	return pl, nil
}

func (p *parser) polyline(attrs attrList) (Entity, error) {
	pl := &Polyline{Layer: attrs.str(8), Closed: attrs.flags(70)&1 != 0}
	for {
		next, ok := p.s.peek()
		if !ok || next.code != 0 {
			return pl, nil
		}
		switch next.value {
		case "VERTEX":
			p.s.next()
			pt, err := p.attrs().point(10, 0)
			if err != nil {
				return nil, err
			}
			pl.Points = append(pl.Points, pt)
		case "SEQEND":
			p.s.next()
			p.attrs()
			return pl, nil
		default:
			p.warnf(next.line, "POLYLINE without SEQEND")
			return pl, nil
		}
	}
}

func (p *parser) insert(head pair, attrs attrList) (Entity, error) {
	ins := &Insert{Layer: attrs.str(8), Block: attrs.str(2)}
	var err error
	if ins.Position, err = attrs.point(10, 0); err != nil {
		return nil, err
	}
	if ins.Rotation, err = attrs.float(50, 0); err != nil {
		return nil, err
	}

	scale := func(code int) (float32, bool) {
		a, ok := attrs.find(code)
		if !ok {
			return 1, false
		}
		v, err := a.float()
		if err != nil {
			p.warnf(a.line, "INSERT %q: invalid scale %q, using 1", ins.Block, a.value)
			return 1, true
		}
		return v, true
	}
	sx, hasX := scale(41)
	sy, hasY := scale(42)
	sz, hasZ := scale(43)
	if hasX && !hasY && !hasZ {
		sy, sz = sx, sx
	}
	ins.Scale = geom.Vector3{X: sx, Y: sy, Z: sz}
	return ins, nil
}

// attrs collects the pairs of the current entity.
func (p *parser) attrs() attrList {
	var attrs attrList
	for {
		next, ok := p.s.peek()
		if !ok || next.code == 0 {
			return attrs
		}
		p.s.next()
		attrs = append(attrs, next)
	}
}

type attrList []pair

func (l attrList) find(code int) (pair, bool) {
	for _, a := range l {
		if a.code == code {
			return a, true
		}
	}
	return pair{}, false
}

func (l attrList) str(code int) string {
	a, _ := l.find(code)
	return a.value
}

func (l attrList) flags(code int) int {
	a, _ := l.find(code)
	n, _ := strconv.Atoi(a.value)
	return n
}

func (l attrList) float(code int, def float32) (float32, error) {
	a, ok := l.find(code)
	if !ok {
		return def, nil
	}
	return a.float()
}

// point reads the coordinate triple starting at code (10, 20, 30 for code 10).
func (l attrList) point(code int, def float32) (geom.Vector3, error) {
	var v [3]float32
	for i := range v {
		f, err := l.float(code+i*10, def)
		if err != nil {
			return geom.Vector3{}, err
		}
		v[i] = f
	}
	return geom.Vector3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func (a pair) float() (float32, error) {
	f, err := source.ParseFloat(a.value)
	if err != nil {
		return 0, &source.ParseError{Format: source.FormatDrafting, Line: a.line + 1, Reason: fmt.Sprintf("group %d: invalid number %q", a.code, a.value), Err: err}
	}
	return f, nil
}
