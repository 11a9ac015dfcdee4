package dialect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnresolvedPlaceholder is returned when a pagination clause still
	// carries a "?" with no bind value to substitute. FIRST/SKIP take literals.
	ErrUnresolvedPlaceholder = errors.New("pagination placeholder was not resolved to a literal")
	// ErrUnsupportedClause is returned for pagination the rewriter cannot
	// place: non-integer values, no top-level SELECT, or FIRST/SKIP already present.
	ErrUnsupportedClause = errors.New("unsupported pagination clause")
)

// RewriteResult is a statement after pagination was translated.
type RewriteResult struct {
	SQL  string
	Args []any
	// ConsumedBinds is how many trailing bind arguments were folded into
	// the statement text as FIRST/SKIP literals.
	ConsumedBinds int
}

type token struct {
	text       string
	start, end int
}

func (t token) is(word string) bool {
	return strings.EqualFold(t.text, word)
}

// scanTopLevel tokenizes the outermost statement. String literals, delimited
// identifiers and comments are skipped; anything inside parentheses is
// collapsed so only the enclosing "(" and ")" show up.
func scanTopLevel(query string) []token {
	var (
		tokens []token
		depth  int
		n      = len(query)
	)
	emit := func(start, end int) {
		if depth == 0 {
			tokens = append(tokens, token{text: query[start:end], start: start, end: end})
		}
	}
	for i := 0; i < n; {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			j := i + 1
			for j < n {
				if query[j] == c {
					if j+1 < n && query[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j < n {
				j++
			}
			emit(i, j)
			i = j
		case c == '-' && i+1 < n && query[i+1] == '-':
			j := strings.IndexByte(query[i:], '\n')
			if j < 0 {
				return tokens
			}
			i += j + 1
		case c == '/' && i+1 < n && query[i+1] == '*':
			j := strings.Index(query[i+2:], "*/")
			if j < 0 {
				return tokens
			}
			i += j + 4
		case c == '(':
			emit(i, i+1)
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			emit(i, i+1)
			i++
		case isWordByte(c):
			j := i + 1
			for j < n && isWordByte(query[j]) {
				j++
			}
			emit(i, j)
			i = j
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			emit(i, i+1)
			i++
		}
	}
	return tokens
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c == '?' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}

// paginationClause is the trailing LIMIT/OFFSET clause of a statement.
type paginationClause struct {
	start, end int
	limit      *token
	offset     *token
}

func (p paginationClause) placeholders() int {
	n := 0
	if p.limit != nil && p.limit.text == "?" {
		n++
	}
	if p.offset != nil && p.offset.text == "?" {
		n++
	}
	return n
}

// findClause matches, from the end of the top-level token stream:
// LIMIT v [OFFSET w], OFFSET w [ROWS] [LIMIT v].
func findClause(tokens []token) (paginationClause, bool) {
	end := len(tokens)
	for end > 0 && tokens[end-1].text == ";" {
		end--
	}
	t := tokens[:end]
	at := func(i int) (token, bool) {
		if i < 0 || i >= len(t) {
			return token{}, false
		}
		return t[i], true
	}
	last := len(t) - 1
	if last < 1 {
		return paginationClause{}, false
	}

	var (
		clause paginationClause
		i      = last
	)
	clause.end = t[last].end

	// trailing LIMIT v
	if kw, ok := at(i - 1); ok && kw.is("LIMIT") {
		v := t[i]
		clause.limit = &v
		clause.start = kw.start
		i -= 2
		// OFFSET w [ROWS] LIMIT v
		j := i
		if rows, ok := at(j); ok && (rows.is("ROWS") || rows.is("ROW")) {
			j--
		}
		if kw, ok := at(j - 1); ok && kw.is("OFFSET") {
			w := t[j]
			clause.offset = &w
			clause.start = kw.start
		}
		return clause, true
	}

	// trailing OFFSET w [ROWS], optionally preceded by LIMIT v
	j := i
	if rows, ok := at(j); ok && (rows.is("ROWS") || rows.is("ROW")) {
		j--
	}
	if kw, ok := at(j - 1); ok && kw.is("OFFSET") {
		w := t[j]
		clause.offset = &w
		clause.start = kw.start
		if lkw, ok := at(j - 3); ok && lkw.is("LIMIT") {
			v := t[j-2]
			clause.limit = &v
			clause.start = lkw.start
		}
		return clause, true
	}
	return paginationClause{}, false
}

// strayClause finds a top-level LIMIT or OFFSET followed by a value that
// findClause did not match, such as "LIMIT -1" or "LIMIT 10, 20". Native
// OFFSET ... FETCH is left alone.
func strayClause(tokens []token) (token, bool) {
	for _, t := range tokens {
		if t.is("FETCH") {
			return token{}, false
		}
	}
	for i := 0; i+1 < len(tokens); i++ {
		if !tokens[i].is("LIMIT") && !tokens[i].is("OFFSET") {
			continue
		}
		next := tokens[i+1].text
		if next == "?" || next == "-" || next == "+" || (next[0] >= '0' && next[0] <= '9') {
			return tokens[i], true
		}
	}
	return token{}, false
}

func unsupportedStray(query string, tok token) error {
	return fmt.Errorf("%w: cannot translate %q", ErrUnsupportedClause, strings.TrimSpace(query[tok.start:]))
}

// literalValue resolves a clause value to an integer, taking "?" from explicit.
func literalValue(tok *token, explicit *int64) (*int64, error) {
	if explicit != nil {
		if *explicit < 0 {
			return nil, fmt.Errorf("%w: negative value %d", ErrUnsupportedClause, *explicit)
		}
		return explicit, nil
	}
	if tok == nil {
		return nil, nil
	}
	if tok.text == "?" {
		return nil, ErrUnresolvedPlaceholder
	}
	v, err := strconv.ParseInt(tok.text, 10, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: %q is not a non-negative integer literal", ErrUnsupportedClause, tok.text)
	}
	return &v, nil
}

// Rewrite translates generic LIMIT/OFFSET pagination into FIRST/SKIP placed
// right after the top-level SELECT. Explicit limit/offset values take
// precedence over values found in the statement text. A statement with no
// pagination and no explicit values is returned unchanged.
func Rewrite(query string, limit, offset *int64) (string, error) {
	tokens := scanTopLevel(query)
	clause, found := findClause(tokens)
	if !found {
		if tok, stray := strayClause(tokens); stray {
			return "", unsupportedStray(query, tok)
		}
		if limit == nil && offset == nil {
			return query, nil
		}
	}

	var limitTok, offsetTok *token
	if found {
		limitTok, offsetTok = clause.limit, clause.offset
	}
	first, err := literalValue(limitTok, limit)
	if err != nil {
		return "", err
	}
	skip, err := literalValue(offsetTok, offset)
	if err != nil {
		return "", err
	}

	selectAt := -1
	for i, t := range tokens {
		if t.is("SELECT") {
			selectAt = i
			break
		}
	}
	if selectAt < 0 {
		return "", fmt.Errorf("%w: no top-level SELECT", ErrUnsupportedClause)
	}
	if selectAt+1 < len(tokens) {
		if next := tokens[selectAt+1]; next.is("FIRST") || next.is("SKIP") {
			return "", fmt.Errorf("%w: statement already uses FIRST/SKIP", ErrUnsupportedClause)
		}
	}

	body := query
	if found {
		body = strings.TrimRight(query[:clause.start], " \t\r\n") + query[clause.end:]
	}

	var native strings.Builder
	if first != nil {
		native.WriteString(" FIRST ")
		native.WriteString(strconv.FormatInt(*first, 10))
	}
	if skip != nil && *skip > 0 {
		native.WriteString(" SKIP ")
		native.WriteString(strconv.FormatInt(*skip, 10))
	}
	if native.Len() == 0 {
		return body, nil
	}

	at := tokens[selectAt].end
	return body[:at] + native.String() + body[at:], nil
}

// RewriteWithArgs resolves "?" placeholders in the trailing pagination
// clause from the trailing bind arguments, then rewrites. The consumed
// arguments are removed from the returned argument list.
func RewriteWithArgs(query string, args []any) (RewriteResult, error) {
	return RewritePage(query, args, nil, nil)
}

// RewritePage is RewriteWithArgs with an explicit page. Explicit limit and
// offset win over the statement's own values, and binds behind replaced
// placeholders are still dropped so the argument list matches the text.
func RewritePage(query string, args []any, limit, offset *int64) (RewriteResult, error) {
	tokens := scanTopLevel(query)
	clause, found := findClause(tokens)
	if !found {
		if tok, stray := strayClause(tokens); stray {
			return RewriteResult{}, unsupportedStray(query, tok)
		}
		sql, err := Rewrite(query, limit, offset)
		if err != nil {
			return RewriteResult{}, err
		}
		return RewriteResult{SQL: sql, Args: args}, nil
	}

	n := clause.placeholders()
	if n > len(args) {
		return RewriteResult{}, ErrUnresolvedPlaceholder
	}
	trailing := args[len(args)-n:]
	rest := args[:len(args)-n]

	k := 0
	// Placeholders bind in text order: the clause token that starts first
	// consumes the first trailing argument.
	ordered := []*token{clause.limit, clause.offset}
	if clause.limit != nil && clause.offset != nil && clause.offset.start < clause.limit.start {
		ordered = []*token{clause.offset, clause.limit}
	}
	for _, tok := range ordered {
		if tok == nil || tok.text != "?" {
			continue
		}
		arg := trailing[k]
		k++
		target := &offset
		if tok == clause.limit {
			target = &limit
		}
		if *target != nil {
			continue
		}
		v, err := bindInt(arg)
		if err != nil {
			return RewriteResult{}, err
		}
		*target = &v
	}

	sql, err := Rewrite(query, limit, offset)
	if err != nil {
		return RewriteResult{}, err
	}
	return RewriteResult{SQL: sql, Args: rest, ConsumedBinds: n}, nil
}

func bindInt(arg any) (int64, error) {
	v, err := ValueOf(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnresolvedPlaceholder, err)
	}
	i, ok := v.AsInt64()
	if !ok {
		return 0, fmt.Errorf("%w: bind value %v is not an integer", ErrUnresolvedPlaceholder, arg)
	}
	return i, nil
}
