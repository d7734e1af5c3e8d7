package expr

import (
	"unicode/utf8"

	sqlexec "github.com/mstgnz/sqlexec"
)

type likeTokenKind int

const (
	likeLiteral     likeTokenKind = iota
	likeWildcardAny               // %: zero or more characters
	likeWildcardOne               // _: exactly one character
)

type likeToken struct {
	kind likeTokenKind
	ch   rune
}

// EvaluateLike is the three-valued LIKE operation. The escape must be empty
// or exactly one character; an unescaped trailing escape or a pattern equal
// to the escape raises invalid_input_value. Invalid UTF-8 in the input or
// the pattern yields NULL. All wildcard advances are in UTF-8 character
// units.
func EvaluateLike(ctx *Context, input, pattern, escape string) sqlexec.Value {
	if escape != "" && utf8.RuneCountInString(escape) != 1 {
		ctx.AddError(Diagnostic{Kind: sqlexec.ErrorInvalidInputValue, Message: "escape sequence must be empty or one character", Arguments: []string{escape}})
		return sqlexec.ErrorValue(sqlexec.ErrorInvalidInputValue)
	}
	if !utf8.ValidString(input) || !utf8.ValidString(pattern) || !utf8.ValidString(escape) {
		return sqlexec.Null()
	}
	if escape != "" && pattern == escape {
		ctx.AddError(Diagnostic{Kind: sqlexec.ErrorInvalidInputValue, Message: "pattern consists of a bare escape character"})
		return sqlexec.ErrorValue(sqlexec.ErrorInvalidInputValue)
	}
	tokens, ok := tokenizeLike(pattern, escape)
	if !ok {
		ctx.AddError(Diagnostic{Kind: sqlexec.ErrorInvalidInputValue, Message: "pattern ends with an unescaped escape character", Arguments: []string{pattern}})
		return sqlexec.ErrorValue(sqlexec.ErrorInvalidInputValue)
	}
	return sqlexec.BooleanValue(matchLike(input, tokens))
}

// tokenizeLike converts the pattern to tokens, collapsing runs of %.
// It fails only on a trailing unescaped escape character.
func tokenizeLike(pattern, escape string) ([]likeToken, bool) {
	var esc rune
	hasEsc := false
	if escape != "" {
		esc, _ = utf8.DecodeRuneInString(escape)
		hasEsc = true
	}
	var tokens []likeToken
	i := 0
	for i < len(pattern) {
		r, sz := utf8.DecodeRuneInString(pattern[i:])
		i += sz
		if hasEsc && r == esc {
			if i >= len(pattern) {
				return nil, false
			}
			lit, lsz := utf8.DecodeRuneInString(pattern[i:])
			i += lsz
			tokens = append(tokens, likeToken{kind: likeLiteral, ch: lit})
			continue
		}
		switch r {
		case '%':
			if len(tokens) > 0 && tokens[len(tokens)-1].kind == likeWildcardAny {
				continue
			}
			tokens = append(tokens, likeToken{kind: likeWildcardAny})
		case '_':
			tokens = append(tokens, likeToken{kind: likeWildcardOne})
		default:
			tokens = append(tokens, likeToken{kind: likeLiteral, ch: r})
		}
	}
	return tokens, true
}

// matchLike runs the greedy backtracking match. Each wildcard_any records a
// backtrack point; on mismatch the input restarts one character later from
// the saved pattern position. Trailing wildcard_any tokens match the empty
// suffix.
func matchLike(input string, tokens []likeToken) bool {
	i := 0      // byte position in input
	p := 0      // token position
	btPat := -1 // token position after the last wildcard_any
	btInp := 0  // input position the wildcard restarts from
	for {
		if p < len(tokens) {
			t := tokens[p]
			switch t.kind {
			case likeWildcardAny:
				btPat = p + 1
				btInp = i
				p++
				continue
			case likeWildcardOne:
				if i < len(input) {
					_, sz := utf8.DecodeRuneInString(input[i:])
					i += sz
					p++
					continue
				}
			case likeLiteral:
				if i < len(input) {
					r, sz := utf8.DecodeRuneInString(input[i:])
					if r == t.ch {
						i += sz
						p++
						continue
					}
				}
			}
		} else if i == len(input) {
			return true
		}
		if btPat >= 0 && btInp < len(input) {
			_, sz := utf8.DecodeRuneInString(input[btInp:])
			btInp += sz
			i = btInp
			p = btPat
			continue
		}
		return false
	}
}
