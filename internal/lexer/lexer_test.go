package lexer

import "testing"

func TestNextTokenBasic(t *testing.T) {
	input := `fn @main(%x: Tensor[(5, 5), float32]) -> Tensor[(), float32] {
  block {
    %lv0 = sum(%x)
    return %lv0
  }
}`

	expected := []struct {
		typ     TokenType
		literal string
	}{
		{FN, "fn"},
		{GLOBAL, "main"},
		{LPAREN, "("},
		{VARIDENT, "x"},
		{COLON, ":"},
		{TENSOR, "Tensor"},
		{LBRACK, "["},
		{LPAREN, "("},
		{INT, "5"},
		{COMMA, ","},
		{INT, "5"},
		{RPAREN, ")"},
		{COMMA, ","},
		{IDENT, "float32"},
		{RBRACK, "]"},
		{RPAREN, ")"},
		{ARROW, "->"},
		{TENSOR, "Tensor"},
		{LBRACK, "["},
		{LPAREN, "("},
		{RPAREN, ")"},
		{COMMA, ","},
		{IDENT, "float32"},
		{RBRACK, "]"},
		{LBRACE, "{"},
		{BLOCK, "block"},
		{LBRACE, "{"},
		{VARIDENT, "lv0"},
		{ASSIGN, "="},
		{IDENT, "sum"},
		{LPAREN, "("},
		{VARIDENT, "x"},
		{RPAREN, ")"},
		{RETURN, "return"},
		{VARIDENT, "lv0"},
		{RBRACE, "}"},
		{RBRACE, "}"},
		{EOF, ""},
	}

	l := New(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Fatalf("token %d: type = %s, want %s (literal %q)", i, tok.Type, exp.typ, tok.Literal)
		}
		if tok.Literal != exp.literal {
			t.Fatalf("token %d: literal = %q, want %q", i, tok.Literal, exp.literal)
		}
	}
	if errs := l.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected lexer errors: %v", errs)
	}
}

func TestNextTokenOperatorsAndLiterals(t *testing.T) {
	input := `out %t.0 zeros(()) {dtype = "float32"} 1.5 -3 2e10`

	expected := []struct {
		typ     TokenType
		literal string
	}{
		{OUT, "out"},
		{VARIDENT, "t"},
		{DOT, "."},
		{INT, "0"},
		{IDENT, "zeros"},
		{LPAREN, "("},
		{LPAREN, "("},
		{RPAREN, ")"},
		{RPAREN, ")"},
		{LBRACE, "{"},
		{IDENT, "dtype"},
		{ASSIGN, "="},
		{STRING, "float32"},
		{RBRACE, "}"},
		{FLOATLIT, "1.5"},
		{INT, "-3"},
		{FLOATLIT, "2e10"},
		{EOF, ""},
	}

	l := New(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ || tok.Literal != exp.literal {
			t.Fatalf("token %d: got %s(%q), want %s(%q)", i, tok.Type, tok.Literal, exp.typ, exp.literal)
		}
	}
}

func TestCommentsSkippedByDefault(t *testing.T) {
	input := "// leading comment\nfn // trailing\n@f"
	l := New(input)

	for _, exp := range []TokenType{FN, GLOBAL, EOF} {
		tok := l.NextToken()
		if tok.Type != exp {
			t.Fatalf("got %s, want %s", tok.Type, exp)
		}
	}
}

func TestCommentsPreserved(t *testing.T) {
	input := "// a comment\nfn"
	l := New(input, WithPreserveComments(true))

	tok := l.NextToken()
	if tok.Type != COMMENT {
		t.Fatalf("got %s, want COMMENT", tok.Type)
	}
	if tok.Literal != "// a comment" {
		t.Fatalf("comment literal = %q", tok.Literal)
	}
	if tok := l.NextToken(); tok.Type != FN {
		t.Fatalf("got %s, want fn", tok.Type)
	}
}

func TestPositions(t *testing.T) {
	input := "fn\n  @main"
	l := New(input)

	tok := l.NextToken()
	if tok.Pos.Line != 1 || tok.Pos.Column != 1 {
		t.Errorf("fn position = %s, want 1:1", tok.Pos)
	}
	tok = l.NextToken()
	if tok.Pos.Line != 2 || tok.Pos.Column != 3 {
		t.Errorf("@main position = %s, want 2:3", tok.Pos)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", `"abc`},
		{"bare sigil", "%"},
		{"unexpected character", "#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.input)
			tok := l.NextToken()
			if tok.Type != ILLEGAL {
				t.Fatalf("got %s, want ILLEGAL", tok.Type)
			}
			if len(l.Errors()) == 0 {
				t.Fatal("no error recorded")
			}
		})
	}
}
