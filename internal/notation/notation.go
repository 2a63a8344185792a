// Package notation parses and formats Thud move strings.
//
// A move reads `<actor><origin>-<dest>` followed by zero or more capture
// suffixes `x<cell>`. Actors are `d` (dwarf), `T` (troll) and `R` (the
// thudstone). Files run A through P with I unused; ranks are one or two
// digits. Parsing checks lexical shape only; whether a move is legal on
// the board is the rule oracle's concern.
package notation

import (
	"fmt"
	"regexp"
	"strings"
)

// Actor markers as they appear on the wire.
const (
	Dwarf     byte = 'd'
	Troll     byte = 'T'
	Thudstone byte = 'R'
)

// Side identifies which player acts.
type Side string

const (
	SideDwarf Side = "dwarf"
	SideTroll Side = "troll"
)

var plyPattern = regexp.MustCompile(
	`^([TdR])([A-HJ-P])([1-9][0-9]?)-([A-HJ-P])([1-9][0-9]?)((?:x[A-HJ-P][1-9][0-9]?)*)$`)

// Ply is one parsed move. Immutable once accepted into a log.
type Ply struct {
	Actor    byte
	Origin   string
	Dest     string
	Captures []string
}

// ParseError reports a notation that does not match the move grammar.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string { return fmt.Sprintf("malformed notation %q", e.Raw) }

// Parse validates the wire shape of a move string.
func Parse(raw string) (Ply, error) {
	m := plyPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Ply{}, &ParseError{Raw: raw}
	}
	p := Ply{
		Actor:  m[1][0],
		Origin: m[2] + m[3],
		Dest:   m[4] + m[5],
	}
	if m[6] != "" {
		p.Captures = strings.Split(m[6], "x")[1:]
	}
	return p, nil
}

// Side returns the acting player. The thudstone is moved by the dwarf side.
func (p Ply) Side() Side {
	if p.Actor == Troll {
		return SideTroll
	}
	return SideDwarf
}

func (p Ply) String() string {
	var b strings.Builder
	b.WriteByte(p.Actor)
	b.WriteString(p.Origin)
	b.WriteByte('-')
	b.WriteString(p.Dest)
	for _, c := range p.Captures {
		b.WriteByte('x')
		b.WriteString(c)
	}
	return b.String()
}

// TurnToAct returns the side to move for a log of n committed plies.
// Dwarfs open, so even lengths are dwarf turns.
func TurnToAct(n int) Side {
	if n%2 == 0 {
		return SideDwarf
	}
	return SideTroll
}

// Extends reports whether full carries capture suffixes beyond base.
// The comparison is by length: a same-length but different string from
// the oracle counts as "no captures".
func Extends(base, full string) bool {
	return len(full) > len(base)
}
