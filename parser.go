package lisp

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// errIncomplete signals that the stream ran out of characters before a
// full form could be read; ParseNext turns this into the EOF sentinel
// rather than a hard error, so a caller feeding text incrementally can
// simply retry once more has arrived.
var errIncomplete = errors.New("incomplete form")

const (
	unquoteSymName       = ","
	unquoteSpliceSymName = ",@"
)

// Parser reads characters from a Stream into Values, resolving symbols
// through the Packages registry and rewriting quote/quasiquote forms
// (spec section 4.2).
type Parser struct {
	packages *Packages
}

func NewParser(packages *Packages) *Parser {
	return &Parser{packages: packages}
}

// ParseNext reads one top-level form. If the stream does not yet contain a
// complete form it restores the stream to its pre-attempt position and
// returns the EOF sentinel (IsEOF() true) with a nil error. A malformed
// form also restores the stream (the offending text is not consumed) and
// is reported as a *ParserError.
func (p *Parser) ParseNext(s *Stream) (Value, error) {
	s.Save()
	p.skipAtmosphere(s)
	if s.AtEOF() {
		s.Restore()
		return eofValue, nil
	}
	v, err := p.readForm(s, 0)
	if err != nil {
		s.Restore()
		if errors.Is(err, errIncomplete) {
			return eofValue, nil
		}
		return Nil, err
	}
	s.Commit()
	return v, nil
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isStructural(r rune) bool {
	switch r {
	case '(', ')', '\'', '`', ',', '"', ';':
		return true
	}
	return false
}

func isDelimiter(r rune) bool {
	return r == 0 || isWhitespace(r) || isStructural(r)
}

func (p *Parser) skipAtmosphere(s *Stream) {
	for {
		for isWhitespace(s.Peek()) {
			s.Read()
		}
		if s.Peek() == ';' {
			for s.Peek() != '\n' && !s.AtEOF() {
				s.Read()
			}
			continue
		}
		return
	}
}

func (p *Parser) readForm(s *Stream, bqDepth int) (Value, error) {
	p.skipAtmosphere(s)
	if s.AtEOF() {
		return Nil, errIncomplete
	}
	r := s.Peek()
	switch {
	case r == '(':
		return p.readList(s, bqDepth)
	case r == ')':
		return Nil, newParserError(s.Pos(), "unexpected )")
	case r == '"':
		return p.readString(s)
	case r == '\'':
		s.Read()
		x, err := p.readForm(s, bqDepth)
		if err != nil {
			return Nil, err
		}
		return List(p.quoteSym(), x), nil
	case r == '`':
		s.Read()
		x, err := p.readForm(s, bqDepth+1)
		if err != nil {
			return Nil, err
		}
		return p.bqExpand(x), nil
	case r == ',':
		if bqDepth <= 0 {
			return Nil, newParserError(s.Pos(), "unquote not inside backquote")
		}
		s.Read()
		splice := false
		if s.Peek() == '@' {
			s.Read()
			splice = true
		}
		x, err := p.readForm(s, bqDepth-1)
		if err != nil {
			return Nil, err
		}
		marker := unquoteSymName
		if splice {
			marker = unquoteSpliceSymName
		}
		return List(p.markerSym(marker), x), nil
	default:
		return p.readAtom(s)
	}
}

func (p *Parser) readList(s *Stream, bqDepth int) (Value, error) {
	s.Read() // consume '('
	var items []Value
	for {
		p.skipAtmosphere(s)
		if s.AtEOF() {
			return Nil, errIncomplete
		}
		if s.Peek() == ')' {
			s.Read()
			return List(items...), nil
		}
		if s.Peek() == '.' && isDelimiter(s.PeekAt(1)) {
			s.Read() // consume '.'
			tail, err := p.readForm(s, bqDepth)
			if err != nil {
				return Nil, err
			}
			p.skipAtmosphere(s)
			if s.AtEOF() {
				return Nil, errIncomplete
			}
			if s.Peek() != ')' {
				return Nil, newParserError(s.Pos(), "malformed dotted list")
			}
			s.Read()
			return DottedList(tail, items...), nil
		}
		item, err := p.readForm(s, bqDepth)
		if err != nil {
			return Nil, err
		}
		items = append(items, item)
	}
}

func (p *Parser) readString(s *Stream) (Value, error) {
	s.Read() // consume opening quote
	var sb strings.Builder
	for {
		if s.AtEOF() {
			return Nil, errIncomplete
		}
		r := s.Read()
		if r == '"' {
			return String(sb.String()), nil
		}
		if r == '\\' {
			if s.AtEOF() {
				return Nil, errIncomplete
			}
			sb.WriteRune(s.Read())
			continue
		}
		sb.WriteRune(r)
	}
}

func (p *Parser) readAtom(s *Stream) (Value, error) {
	pos := s.Pos()
	var sb strings.Builder
	for !isDelimiter(s.Peek()) {
		sb.WriteRune(s.Read())
	}
	tok := sb.String()
	if tok == "" {
		return Nil, newParserError(pos, "unexpected character %q", s.Peek())
	}
	return p.classifyToken(tok, pos)
}

func (p *Parser) classifyToken(tok string, pos int) (Value, error) {
	if tok == "#t" || tok == "#T" {
		return Bool(true), nil
	}
	if len(tok) > 0 && tok[0] == '#' {
		return Bool(false), nil
	}

	c := rune(tok[0])
	if c == '+' || c == '-' || unicode.IsDigit(c) {
		if iv, err := strconv.ParseInt(tok, 10, 32); err == nil {
			return Int(int32(iv)), nil
		}
		if strings.ContainsRune(tok, '.') {
			if fv, err := strconv.ParseFloat(tok, 32); err == nil {
				return Float(float32(fv)), nil
			}
		}
		// fall through: not a valid number, treat as a symbol
	}

	return p.resolveSymbolToken(tok, pos)
}

func (p *Parser) resolveSymbolToken(tok string, pos int) (Value, error) {
	if reservedWords[tok] {
		return SymbolValue(p.packages.Global().Intern(tok)), nil
	}
	if strings.HasPrefix(tok, ":") {
		name := tok[1:]
		if name == "" {
			return Nil, newParserError(pos, "empty keyword")
		}
		return SymbolValue(p.packages.Keywords().Intern(name)), nil
	}
	if idx := strings.IndexByte(tok, ':'); idx >= 0 {
		pkgName, name := tok[:idx], tok[idx+1:]
		if pkgName == "" || name == "" {
			return Nil, newParserError(pos, "malformed qualified symbol %q", tok)
		}
		pkg := p.packages.FindOrCreate(pkgName)
		return SymbolValue(pkg.Intern(name)), nil
	}
	return SymbolValue(p.packages.Current().Resolve(tok)), nil
}

func (p *Parser) quoteSym() Value {
	return SymbolValue(p.packages.Global().Intern("quote"))
}

func (p *Parser) markerSym(name string) Value {
	return SymbolValue(p.packages.Global().Intern(name))
}

// asUnquote reports whether v is a marker cons produced by readForm for
// "," or ",@", returning whether it was a splice and its wrapped target.
func (p *Parser) asUnquote(v Value) (splice bool, target Value, ok bool) {
	if v.Kind() != KindCons {
		return false, Nil, false
	}
	c := v.AsCons()
	if c.First.Kind() != KindSymbol {
		return false, Nil, false
	}
	sym := c.First.AsSymbol()
	if sym.Package() != p.packages.Global() {
		return false, Nil, false
	}
	rest := c.Rest
	if rest.Kind() != KindCons {
		return false, Nil, false
	}
	rc := rest.AsCons()
	if !rc.Rest.IsNil() {
		return false, Nil, false
	}
	switch sym.Name() {
	case unquoteSymName:
		return false, rc.First, true
	case unquoteSpliceSymName:
		return true, rc.First, true
	}
	return false, Nil, false
}

// bqExpand rewrites a backquoted template into explicit list/append/quote
// constructions per spec section 4.2.
func (p *Parser) bqExpand(form Value) Value {
	if form.Kind() != KindCons {
		return List(p.quoteSym(), form)
	}
	c := form.AsCons()
	if c.Rest.IsNil() {
		if splice, target, ok := p.asUnquote(c.First); ok && !splice {
			return target
		}
	}

	var parts []Value
	cur := form
	for cur.Kind() == KindCons {
		cc := cur.AsCons()
		parts = append(parts, p.bracketTransform(cc.First))
		cur = cc.Rest
	}
	if !cur.IsNil() {
		parts = append(parts, List(p.quoteSym(), cur))
	}

	if allListCalls(parts) {
		var elems []Value
		for _, pt := range parts {
			elems = append(elems, listCallArgs(pt)...)
		}
		return p.consCall("list", elems)
	}
	return p.consCall("append", parts)
}

func (p *Parser) bracketTransform(elem Value) Value {
	if splice, target, ok := p.asUnquote(elem); ok {
		if splice {
			return target
		}
		return p.consCall("list", []Value{target})
	}
	return p.consCall("list", []Value{p.bqExpand(elem)})
}

func (p *Parser) consCall(name string, args []Value) Value {
	sym := p.packages.Current().Resolve(name)
	return List(append([]Value{SymbolValue(sym)}, args...)...)
}

func isListCall(v Value) bool {
	if v.Kind() != KindCons {
		return false
	}
	head := v.AsCons().First
	return head.Kind() == KindSymbol && head.AsSymbol().Name() == "list"
}

func listCallArgs(v Value) []Value {
	items, _ := ListToSlice(v.AsCons().Rest)
	return items
}

func allListCalls(parts []Value) bool {
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if !isListCall(p) {
			return false
		}
	}
	return true
}
