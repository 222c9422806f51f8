package filter

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// expressionAST is the root of a parsed $filter expression.
type expressionAST struct {
	Pos lexer.Position

	Or []*andAST `parser:"@@ ( 'or' @@ )*"`
}

type andAST struct {
	Pos lexer.Position

	And []*termAST `parser:"@@ ( 'and' @@ )*"`
}

type termAST struct {
	Pos lexer.Position

	Group      *expressionAST `parser:"  '(' @@ ')'"`
	Comparison *comparisonAST `parser:"| @@"`
}

type comparisonAST struct {
	Pos lexer.Position

	Left  *operandAST `parser:"@@"`
	Op    string      `parser:"@( 'eq' | 'ne' | 'lt' | 'le' | 'gt' | 'ge' )"`
	Right *operandAST `parser:"@@"`
}

type operandAST struct {
	Pos lexer.Position

	Null     bool     `parser:"  @'null'"`
	DateTime *string  `parser:"| @DateTime"`
	Number   *string  `parser:"| @Number"`
	String   *string  `parser:"| @String"`
	Call     *callAST `parser:"| @@"`
	Path     *string  `parser:"| @( Path | Ident )"`
}

type callAST struct {
	Pos lexer.Position

	Function string      `parser:"@Ident '('"`
	Arg      *operandAST `parser:"@@ ')'"`
}

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "DateTime", Pattern: `\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:\d{2})?)?`},
	{Name: "Number", Pattern: `-?\d+(\.\d+)?`},
	{Name: "String", Pattern: `'([^']|'')*'`},
	{Name: "Path", Pattern: `[a-zA-Z_]\w*(/[a-zA-Z_]\w*)+`},
	{Name: "Ident", Pattern: `[a-zA-Z_]\w*`},
	{Name: "Punct", Pattern: `[(),]`},
})

var filterParser = participle.MustBuild[expressionAST](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// unquote strips the surrounding quotes of a string literal and collapses
// doubled quotes.
func unquote(literal string) string {
	if len(literal) >= 2 {
		literal = literal[1 : len(literal)-1]
	}
	return strings.ReplaceAll(literal, "''", "'")
}
