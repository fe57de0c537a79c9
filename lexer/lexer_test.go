package lexer

import (
	"testing"

	"wings/token"
)

func collectTypes(t *testing.T, input string) []token.Type {
	t.Helper()
	l := New(input)
	var types []token.Type
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == token.EOF {
			break
		}
	}
	return types
}

func assertTypes(t *testing.T, input string, want []token.Type) {
	t.Helper()
	got := collectTypes(t, input)
	if len(got) != len(want) {
		t.Fatalf("%q: got %d tokens %v, want %d %v", input, len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%q: token %d = %s, want %s (full: %v)", input, i, got[i], want[i], got)
		}
	}
}

func TestNextTokenOperators(t *testing.T) {
	assertTypes(t, "+ - * / % ** == != <= >= << >>", []token.Type{
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT, token.POW,
		token.EQ, token.NOT_EQ, token.LT_EQ, token.GT_EQ, token.SHL, token.SHR,
		token.EOF,
	})
}

func TestNextTokenAugmentedAssign(t *testing.T) {
	assertTypes(t, "x += 1", []token.Type{token.IDENT, token.PLUS_EQ, token.INT, token.EOF})
}

func TestNextTokenIntFloat(t *testing.T) {
	l := New("42 3.14 0x1F 0b101")
	tok := l.NextToken()
	if tok.Type != token.INT || tok.Literal != "42" {
		t.Fatalf("got %+v", tok)
	}
	tok = l.NextToken()
	if tok.Type != token.FLOAT || tok.Literal != "3.14" {
		t.Fatalf("got %+v", tok)
	}
	tok = l.NextToken()
	if tok.Type != token.INT || tok.Literal != "0x1F" {
		t.Fatalf("got %+v", tok)
	}
	tok = l.NextToken()
	if tok.Type != token.INT || tok.Literal != "0b101" {
		t.Fatalf("got %+v", tok)
	}
}

func TestNextTokenStringEscapes(t *testing.T) {
	l := New(`"a\nb\tc\\d"`)
	tok := l.NextToken()
	if tok.Type != token.STRING {
		t.Fatalf("got %+v", tok)
	}
	want := "a\nb\tc\\d"
	if tok.Literal != want {
		t.Fatalf("got literal %q, want %q", tok.Literal, want)
	}
}

func TestNextTokenTripleQuotedStringSpansNewlines(t *testing.T) {
	l := New("\"\"\"line1\nline2\"\"\"")
	tok := l.NextToken()
	if tok.Type != token.STRING {
		t.Fatalf("got %+v", tok)
	}
	if tok.Literal != "line1\nline2" {
		t.Fatalf("got literal %q", tok.Literal)
	}
}

func TestNextTokenUnterminatedStringRecordsError(t *testing.T) {
	l := New("\"unterminated")
	for {
		tok := l.NextToken()
		if tok.Type == token.EOF {
			break
		}
	}
	if len(l.Errors()) == 0 {
		t.Fatal("expected an unterminated-string error")
	}
}

func TestNextTokenIndentDedent(t *testing.T) {
	src := "if x:\n    y = 1\n    z = 2\nw = 3\n"
	assertTypes(t, src, []token.Type{
		token.IF, token.IDENT, token.COLON, token.NEWLINE,
		token.INDENT,
		token.IDENT, token.ASSIGN, token.INT, token.NEWLINE,
		token.IDENT, token.ASSIGN, token.INT, token.NEWLINE,
		token.DEDENT,
		token.IDENT, token.ASSIGN, token.INT, token.NEWLINE,
		token.EOF,
	})
}

func TestNextTokenNestedIndentProducesMultipleDedents(t *testing.T) {
	src := "if a:\n    if b:\n        c = 1\nd = 2\n"
	types := collectTypes(t, src)
	dedents := 0
	for _, ty := range types {
		if ty == token.DEDENT {
			dedents++
		}
	}
	if dedents != 2 {
		t.Fatalf("expected 2 DEDENT tokens before the trailing statement, got %d (%v)", dedents, types)
	}
}

func TestNextTokenParenSuppressesNewline(t *testing.T) {
	src := "f(1,\n2)\n"
	assertTypes(t, src, []token.Type{
		token.IDENT, token.LPAREN, token.INT, token.COMMA, token.INT, token.RPAREN,
		token.NEWLINE, token.EOF,
	})
}

func TestNextTokenCommentsIgnored(t *testing.T) {
	src := "x = 1 # trailing comment\n# whole line\ny = 2\n"
	assertTypes(t, src, []token.Type{
		token.IDENT, token.ASSIGN, token.INT, token.NEWLINE,
		token.IDENT, token.ASSIGN, token.INT, token.NEWLINE,
		token.EOF,
	})
}

func TestNextTokenMixedTabsAndSpacesIsAnError(t *testing.T) {
	l := New("if x:\n \tpass\n")
	for {
		tok := l.NextToken()
		if tok.Type == token.EOF {
			break
		}
	}
	if len(l.Errors()) == 0 {
		t.Fatal("expected a mixed tabs/spaces indentation error")
	}
}

func TestNextTokenKeywordsAndIdentifiers(t *testing.T) {
	assertTypes(t, "def calculate_tax(x): return x\n", []token.Type{
		token.DEF, token.IDENT, token.LPAREN, token.IDENT, token.RPAREN, token.COLON,
		token.RETURN, token.IDENT, token.NEWLINE, token.EOF,
	})
}

func TestNextTokenIllegalCharacterRecordsError(t *testing.T) {
	l := New("x = 1 @ 2\n")
	for {
		tok := l.NextToken()
		if tok.Type == token.EOF {
			break
		}
	}
	if len(l.Errors()) == 0 {
		t.Fatal("expected an illegal-character error for '@'")
	}
}

func TestNextTokenDotFollowedByDigitIsFloat(t *testing.T) {
	l := New(".5")
	tok := l.NextToken()
	if tok.Type != token.FLOAT || tok.Literal != ".5" {
		t.Fatalf("got %+v", tok)
	}
}

func TestNextTokenLineContinuationJoinsLines(t *testing.T) {
	src := "x = 1 + \\\n    2\n"
	assertTypes(t, src, []token.Type{
		token.IDENT, token.ASSIGN, token.INT, token.PLUS, token.INT, token.NEWLINE, token.EOF,
	})
}
