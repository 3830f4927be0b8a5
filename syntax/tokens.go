// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import "strconv"

// Kind is the kind of a lexical token.
type Kind int

// The list of all possible tokens and reserved words.
const (
	Invalid Kind = iota
	EOF
	Newline

	PartialWord   // word fragment followed by more of the same word
	WordEnd       // last fragment of a word
	PartialAssign // first fragment of an assignment word
	AssignEnd     // assignment word in a single fragment
	Name          // parameter name after $ or ${
	IONumber      // digits directly followed by < or >

	Less        // <
	DLess       // <<
	Great       // >
	DGreat      // >>
	LessAnd     // <&
	GreatAnd    // >&
	DLessDash   // <<-
	LessGreat   // <>
	Clobber     // >|
	Semi        // ;
	DSemi       // ;;
	LeftBrace   // {
	RightBrace  // }
	Dollar      // $
	DollarBrace // ${
	DollarParen // $(
	LeftParen   // (
	RightParen  // )
	Amp         // &
	AndAnd      // &&
	Bar         // |
	OrOr        // ||
	Bang        // !

	For
	In
	Do
	Done
	Case
	Esac
	While
	Until
	Select
	If
	Else
	Elif
	Fi

	numKinds
)

var kindNames = [numKinds]string{
	Invalid:       "invalid",
	EOF:           "EOF",
	Newline:       "newline",
	PartialWord:   "word part",
	WordEnd:       "word",
	PartialAssign: "assignment part",
	AssignEnd:     "assignment",
	Name:          "name",
	IONumber:      "fd",

	Less:        "<",
	DLess:       "<<",
	Great:       ">",
	DGreat:      ">>",
	LessAnd:     "<&",
	GreatAnd:    ">&",
	DLessDash:   "<<-",
	LessGreat:   "<>",
	Clobber:     ">|",
	Semi:        ";",
	DSemi:       ";;",
	LeftBrace:   "{",
	RightBrace:  "}",
	Dollar:      "$",
	DollarBrace: "${",
	DollarParen: "$(",
	LeftParen:   "(",
	RightParen:  ")",
	Amp:         "&",
	AndAnd:      "&&",
	Bar:         "|",
	OrOr:        "||",
	Bang:        "!",

	For:    "for",
	In:     "in",
	Do:     "do",
	Done:   "done",
	Case:   "case",
	Esac:   "esac",
	While:  "while",
	Until:  "until",
	Select: "select",
	If:     "if",
	Else:   "else",
	Elif:   "elif",
	Fi:     "fi",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// IsKeyword reports whether the kind is a reserved word.
func (k Kind) IsKeyword() bool { return k >= For && k <= Fi }

// IsRedirect reports whether the kind is a redirection operator.
func (k Kind) IsRedirect() bool {
	switch k {
	case Less, DLess, Great, DGreat, LessAnd, GreatAnd, DLessDash, LessGreat, Clobber:
		return true
	}
	return false
}

var keywords = map[string]Kind{
	"for":    For,
	"in":     In,
	"do":     Do,
	"done":   Done,
	"case":   Case,
	"esac":   Esac,
	"while":  While,
	"until":  Until,
	"select": Select,
	"if":     If,
	"else":   Else,
	"elif":   Elif,
	"fi":     Fi,
}

// Token is a single lexical token. Text is empty for operators.
type Token struct {
	Kind   Kind
	Text   string
	Offset int // byte offset into the main input where the token starts
}

func (t Token) String() string {
	switch t.Kind {
	case PartialWord, WordEnd, PartialAssign, AssignEnd, Name, IONumber:
		return strconv.Quote(t.Text)
	}
	return t.Kind.String()
}

// Hint tells the lexer what the parser expects next, so that it can classify
// words which depend on their context.
type Hint int

const (
	NoHint            Hint = iota
	ComposingWord          // in the middle of a word; end it at any break
	CmdPrefix              // detect assignment words and io numbers
	CmdPrefixKeywords      // like CmdPrefix, also detecting reserved words
	ExpectIn               // only "in" is a reserved word
	CmdPostfix             // detect io numbers
)

func (h Hint) commandPrefix() bool { return h == CmdPrefix || h == CmdPrefixKeywords }
