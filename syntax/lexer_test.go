// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"

	"mvdan.cc/nsh/alias"
)

func lexAll(src string, hints ...Hint) []Token {
	p := &parser{main: source{src: []byte(src)}}
	var toks []Token
	for i := 0; ; i++ {
		hint := NoHint
		if i < len(hints) {
			hint = hints[i]
		} else if len(hints) > 0 {
			hint = hints[len(hints)-1]
		}
		tok := p.next(hint)
		toks = append(toks, tok)
		if tok.Kind == EOF || tok.Kind == Invalid || (hint == ComposingWord && tok.Kind == WordEnd) {
			return toks
		}
	}
}

func kinds(toks []Token) []Kind {
	ks := make([]Kind, len(toks))
	for i, tok := range toks {
		ks[i] = tok.Kind
	}
	return ks
}

func TestLexHints(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src   string
		hints []Hint
		want  []Kind
	}{
		{"for", []Hint{CmdPrefixKeywords}, []Kind{For, EOF}},
		{"for", []Hint{CmdPrefix}, []Kind{WordEnd, EOF}},
		{"for", []Hint{NoHint}, []Kind{WordEnd, EOF}},
		{"in", []Hint{ExpectIn}, []Kind{In, EOF}},
		{"in", []Hint{CmdPostfix}, []Kind{WordEnd, EOF}},
		{"inside", []Hint{ExpectIn}, []Kind{WordEnd, EOF}},
		{"fi;", []Hint{CmdPrefixKeywords}, []Kind{Fi, Semi, EOF}},
		{"A=b", []Hint{CmdPrefix}, []Kind{AssignEnd, EOF}},
		{"A=$b", []Hint{CmdPrefix, ComposingWord}, []Kind{PartialAssign, Dollar, WordEnd}},
		{"A=b", []Hint{CmdPostfix}, []Kind{WordEnd, EOF}},
		{"1A=b", []Hint{CmdPrefix}, []Kind{WordEnd, EOF}},
		{"=b", []Hint{CmdPrefix}, []Kind{WordEnd, EOF}},
		{"2>f", []Hint{CmdPrefix}, []Kind{IONumber, Great, WordEnd, EOF}},
		{"2>f", []Hint{CmdPostfix}, []Kind{IONumber, Great, WordEnd, EOF}},
		{"2>f", []Hint{NoHint}, []Kind{WordEnd, Great, WordEnd, EOF}},
		{"2 >f", []Hint{CmdPostfix}, []Kind{WordEnd, Great, WordEnd, EOF}},
		{"a2>f", []Hint{CmdPostfix}, []Kind{WordEnd, Great, WordEnd, EOF}},
		{"{a}!", []Hint{CmdPostfix}, []Kind{WordEnd, EOF}},
		{"{ a", []Hint{CmdPrefix}, []Kind{LeftBrace, WordEnd, EOF}},
		{"! a", []Hint{CmdPrefixKeywords}, []Kind{Bang, WordEnd, EOF}},
		{"a#b", []Hint{NoHint}, []Kind{WordEnd, EOF}},
		{"a #b\nc", []Hint{NoHint}, []Kind{WordEnd, Newline, WordEnd, EOF}},
		{"a\\\nb", []Hint{NoHint}, []Kind{WordEnd, EOF}},
		{"<<-<<<>>>>|>&<&", []Hint{NoHint}, []Kind{DLessDash, DLess, LessGreat, DGreat, Clobber, GreatAnd, LessAnd, EOF}},
		{";;;&&&|||", []Hint{NoHint}, []Kind{DSemi, Semi, AndAnd, Amp, OrOr, Bar, EOF}},
		{"a b", []Hint{ComposingWord}, []Kind{WordEnd}},
	}
	for i, tc := range tests {
		tc := tc
		t.Run(fmt.Sprintf("%02d", i), func(t *testing.T) {
			t.Parallel()
			got := kinds(lexAll(tc.src, tc.hints...))
			qt.Assert(t, got, qt.DeepEquals, tc.want, qt.Commentf("%q", tc.src))
		})
	}
}

func TestLexContinuation(t *testing.T) {
	t.Parallel()
	toks := lexAll("ec\\\nho  a\\\n\\\nb", NoHint)
	qt.Assert(t, toks[0].Text, qt.Equals, "echo")
	qt.Assert(t, toks[1].Text, qt.Equals, "ab")
	qt.Assert(t, toks[1].Offset, qt.Equals, 8)
}

func TestLexAliasStack(t *testing.T) {
	t.Parallel()
	tbl := alias.New()
	tbl.Add("a", "b 1")
	tbl.Add("b", "c 2")
	p := &parser{main: source{src: []byte("a 3")}, aliasTable: tbl}

	tok := p.next(CmdPrefix)
	qt.Assert(t, tok.Text, qt.Equals, "c")
	qt.Assert(t, len(p.aliases), qt.Equals, 2)
	qt.Assert(t, p.aliases[0].alias, qt.Equals, "a")
	qt.Assert(t, p.aliases[1].alias, qt.Equals, "b")

	var texts []string
	for tok = p.next(CmdPostfix); tok.Kind != EOF; tok = p.next(CmdPostfix) {
		texts = append(texts, tok.Text)
	}
	qt.Assert(t, texts, qt.DeepEquals, []string{"2", "1", "3"})
	qt.Assert(t, len(p.aliases), qt.Equals, 0)
}

func TestTokenString(t *testing.T) {
	t.Parallel()
	qt.Assert(t, Token{Kind: WordEnd, Text: "a b"}.String(), qt.Equals, `"a b"`)
	qt.Assert(t, Token{Kind: GreatAnd}.String(), qt.Equals, ">&")
	qt.Assert(t, Token{Kind: Newline}.String(), qt.Equals, "newline")
	qt.Assert(t, Kind(-3).String(), qt.Equals, "Kind(-3)")
	qt.Assert(t, Done.IsKeyword(), qt.IsTrue)
	qt.Assert(t, Bang.IsKeyword(), qt.IsFalse)
	qt.Assert(t, Clobber.IsRedirect(), qt.IsTrue)
	qt.Assert(t, Bar.IsRedirect(), qt.IsFalse)
}
