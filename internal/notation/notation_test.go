package notation

import (
	"errors"
	"testing"
)

func TestParseSimpleMove(t *testing.T) {
	p, err := Parse("dA6-O6")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Actor != Dwarf || p.Origin != "A6" || p.Dest != "O6" {
		t.Fatalf("unexpected ply: %+v", p)
	}
	if len(p.Captures) != 0 {
		t.Fatalf("expected no captures, got %v", p.Captures)
	}
	if p.String() != "dA6-O6" {
		t.Fatalf("round trip mismatch: %q", p.String())
	}
}

func TestParseMultiCapture(t *testing.T) {
	p, err := Parse("TJ10-J14xJ15xK15xK14")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Actor != Troll || p.Origin != "J10" || p.Dest != "J14" {
		t.Fatalf("unexpected ply: %+v", p)
	}
	want := []string{"J15", "K15", "K14"}
	if len(p.Captures) != len(want) {
		t.Fatalf("captures: got %v want %v", p.Captures, want)
	}
	for i := range want {
		if p.Captures[i] != want[i] {
			t.Fatalf("captures[%d]: got %q want %q", i, p.Captures[i], want[i])
		}
	}
	if p.String() != "TJ10-J14xJ15xK15xK14" {
		t.Fatalf("round trip mismatch: %q", p.String())
	}
}

func TestParseThudstone(t *testing.T) {
	p, err := Parse("RH8-H9")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Actor != Thudstone || p.Side() != SideDwarf {
		t.Fatalf("unexpected ply: %+v side=%s", p, p.Side())
	}
}

func TestParseRejects(t *testing.T) {
	cases := []string{
		"",
		"A6-O6",        // missing actor
		"xA6-O6",       // unknown actor
		"dI6-O6",       // reserved file letter
		"dA6-I6",       // reserved file letter in destination
		"dA6O6",        // missing delimiter
		"dA6-O6xZ1",    // capture outside files
		"dA0-O6",       // rank zero
		"dA6-O6x",      // dangling capture delimiter
		"TJ10-J14 junk",
	}
	for _, raw := range cases {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q): expected error", raw)
		} else {
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("Parse(%q): expected ParseError, got %T", raw, err)
			}
		}
	}
}

func TestTurnToActAlternates(t *testing.T) {
	if TurnToAct(0) != SideDwarf {
		t.Fatalf("fresh game must be a dwarf turn")
	}
	for n := 0; n < 16; n++ {
		got := TurnToAct(n)
		want := SideDwarf
		if n%2 == 1 {
			want = SideTroll
		}
		if got != want {
			t.Fatalf("TurnToAct(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestExtends(t *testing.T) {
	if !Extends("TJ10-J14", "TJ10-J14xJ15") {
		t.Fatalf("longer string must count as extension")
	}
	if Extends("TJ10-J14", "TJ10-J14") {
		t.Fatalf("identical string is not an extension")
	}
	// Same length, different content: by rule still "no captures".
	if Extends("TJ10-J14", "TJ10-K14") {
		t.Fatalf("same-length string must not count as extension")
	}
}
