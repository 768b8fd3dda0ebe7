package lisp

// Stream is an append-only text buffer with a cursor: a pull source for the
// Parser. It is not blocking — re-feeding more text is the caller's
// responsibility (spec section 4.1).
type Stream struct {
	runes []rune
	pos   int

	hasSave  bool
	saveRune []rune
	savePos  int
}

func NewStream() *Stream {
	return &Stream{}
}

// Add appends text to the buffer; it never disturbs the current cursor or
// any outstanding save.
func (s *Stream) Add(text string) {
	s.runes = append(s.runes, []rune(text)...)
}

// Peek returns the rune at the cursor without consuming it, or 0 at EOF.
func (s *Stream) Peek() rune {
	if s.pos >= len(s.runes) {
		return 0
	}
	return s.runes[s.pos]
}

// PeekAt returns the rune offset past the cursor (0 = Peek()), or 0 past
// EOF. Used by the parser to tell a dotted-pair "." (followed by a
// delimiter) from a token that merely starts with "." without consuming.
func (s *Stream) PeekAt(offset int) rune {
	i := s.pos + offset
	if i < 0 || i >= len(s.runes) {
		return 0
	}
	return s.runes[i]
}

// Read consumes and returns the rune at the cursor, or 0 at EOF.
func (s *Stream) Read() rune {
	r := s.Peek()
	if r != 0 {
		s.pos++
	}
	return r
}

// Pos returns the current cursor offset, used by the Parser to report
// error positions.
func (s *Stream) Pos() int { return s.pos }

// AtEOF reports whether the cursor has reached the end of the buffer.
func (s *Stream) AtEOF() bool { return s.pos >= len(s.runes) }

// Save captures a single checkpoint of the buffer and cursor, overwriting
// any prior save.
func (s *Stream) Save() {
	s.saveRune = s.runes
	s.savePos = s.pos
	s.hasSave = true
}

// Restore rewinds to the last Save, if any, and returns whether it did.
func (s *Stream) Restore() bool {
	if !s.hasSave {
		return false
	}
	s.runes = s.saveRune
	s.pos = s.savePos
	return true
}

// Commit is called after a complete top-level form has been read: the
// consumed prefix is trimmed from the buffer and any pending save is
// cleared, matching "after a successful full read the buffer is trimmed"
// (spec section 4.1).
func (s *Stream) Commit() {
	s.runes = s.runes[s.pos:]
	s.pos = 0
	s.hasSave = false
}
