package search

import (
	"strings"
	"unicode"
)

// operatorFn turns the value of an operator:value token into a subtree.
// Returning nil drops the token.
type operatorFn func(value string) Node

func leaf(f Field, a Attribute) operatorFn {
	return func(v string) Node {
		if v == "" {
			return nil
		}
		return NewLeaf(NewCondition(f, a, v))
	}
}

func lowerLeaf(f Field, a Attribute) operatorFn {
	inner := leaf(f, a)
	return func(v string) Node { return inner(strings.ToLower(v)) }
}

// isValues maps is:<value> to the flag test it stands for.
var isValues = map[string]Condition{
	"read":      NewCondition(FieldRead, Equals, "1"),
	"unread":    NewCondition(FieldRead, NotEquals, "1"),
	"flagged":   NewCondition(FieldFlagged, Equals, "1"),
	"starred":   NewCondition(FieldFlagged, Equals, "1"),
	"unflagged": NewCondition(FieldFlagged, NotEquals, "1"),
	"unstarred": NewCondition(FieldFlagged, NotEquals, "1"),
	"deleted":   NewCondition(FieldDeleted, Equals, "1"),
	"new":       NewCondition(FieldNewMessage, Equals, "1"),
}

// operators maps operator names to their handlers.
var operators = map[string]operatorFn{
	"from":     lowerLeaf(FieldSender, Contains),
	"to":       lowerLeaf(FieldTo, Contains),
	"cc":       lowerLeaf(FieldCc, Contains),
	"bcc":      lowerLeaf(FieldBcc, Contains),
	"replyto":  lowerLeaf(FieldReplyTo, Contains),
	"subject":  leaf(FieldSubject, Contains),
	"in":       leaf(FieldFolder, Equals),
	"folder":   leaf(FieldFolder, Equals),
	"uid":      leaf(FieldUID, Equals),
	"thread":   leaf(FieldThreadID, Equals),
	"class":    func(v string) Node { return leaf(FieldDisplayClass, Equals)(strings.ToUpper(v)) },
	"keyword":  leaf(FieldFlag, Contains),
	"contents": fullText,
	"is": func(v string) Node {
		if c, ok := isValues[strings.ToLower(v)]; ok {
			return NewLeaf(c)
		}
		return nil
	},
	"has": func(v string) Node {
		if low := strings.ToLower(v); low == "attachment" || low == "attachments" {
			return NewLeaf(NewCondition(FieldAttachmentCount, NotEquals, "0"))
		}
		return nil
	},
}

// Parse turns a Gmail-like query string into a condition tree. It returns
// nil for a query without any terms.
//
// Supported syntax:
//   - from:, to:, cc:, bcc:, replyto: - address list substring match
//   - subject: - subject substring match
//   - in:, folder: - folder (by name or ID)
//   - is:read, is:unread, is:flagged (is:starred), is:unflagged, is:deleted, is:new
//   - has:attachment
//   - uid:, thread:, class:, keyword:
//   - Bare words and "quoted phrases" - full-text search over message contents
//   - A leading '-' negates a term; OR between two terms joins them
//
// Adjacent terms are ANDed. OR binds tighter than the implicit AND, so
// "a OR b c" means (a OR b) AND c.
func Parse(queryStr string) Node {
	var root, group Node
	pendingOr := false

	for _, token := range tokenize(queryStr) {
		if token == "OR" {
			pendingOr = group != nil
			continue
		}
		term := parseTerm(token)
		if term == nil {
			continue
		}
		if pendingOr {
			group = Or(group, term)
			pendingOr = false
			continue
		}
		root = And(root, group)
		group = term
	}
	return And(root, group)
}

// parseTerm converts a single token into a subtree.
func parseTerm(token string) Node {
	negate := false
	if len(token) > 1 && token[0] == '-' {
		negate = true
		token = token[1:]
	}

	var n Node
	switch {
	case isQuotedPhrase(token):
		n = fullText(token)
	case strings.Contains(token, ":"):
		idx := strings.Index(token, ":")
		op := strings.ToLower(token[:idx])
		if handler, ok := operators[op]; ok {
			n = handler(unquote(token[idx+1:]))
		} else {
			n = fullText(token)
		}
	default:
		n = fullText(token)
	}

	if n != nil && negate {
		return &Not{Child: n}
	}
	return n
}

// fullText builds a MESSAGE_CONTENTS condition from a bare word or a
// quoted phrase.
func fullText(token string) Node {
	term := ftsTerm(token)
	if term == "" {
		return nil
	}
	return NewLeaf(NewCondition(FieldMessageContents, Contains, term))
}

// ftsTerm renders token as a single FTS4 query term. A word of letters and
// digits, optionally ending in * for a prefix match, is kept as is. Anything
// else becomes a quoted phrase, so operator keywords and punctuation are
// matched as text. Tokens without a letter or digit yield "".
func ftsTerm(token string) string {
	if isQuotedPhrase(token) {
		token = token[1 : len(token)-1]
	}
	token = strings.TrimSpace(strings.ReplaceAll(token, `"`, " "))
	if !strings.ContainsFunc(token, isWordRune) {
		return ""
	}
	if plainWord(token) {
		return token
	}
	return `"` + token + `"`
}

func plainWord(s string) bool {
	switch strings.ToUpper(s) {
	case "AND", "OR", "NOT", "NEAR":
		return false
	}
	body := strings.TrimSuffix(s, "*")
	return body != "" && !strings.ContainsFunc(body, func(r rune) bool { return !isWordRune(r) })
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits a query string on spaces, keeping quoted phrases and
// op:"quoted value" pairs together. Standalone phrases are normalized to
// double quotes; a '-' prefix stays attached to the token it negates.
func tokenize(queryStr string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)
	afterColon := false
	opQuoted := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, char := range queryStr {
		switch {
		case !inQuotes && (char == '"' || (char == '\'' && opensQuote(current.String(), afterColon))):
			inQuotes = true
			quoteChar = char
			opQuoted = afterColon
			afterColon = false
			if opQuoted {
				current.WriteRune('"')
				continue
			}
			// A lone '-' directly before a phrase negates it.
			if current.String() != "-" {
				flush()
			}
			current.WriteRune('"')
		case char == quoteChar && inQuotes:
			inQuotes = false
			quoteChar = 0
			opQuoted = false
			current.WriteRune('"')
			flush()
		case (char == ' ' || char == '\t') && !inQuotes:
			flush()
			afterColon = false
		default:
			current.WriteRune(char)
			afterColon = char == ':'
		}
	}
	if inQuotes {
		// Unterminated quote: close it so the phrase survives.
		current.WriteRune('"')
	}
	flush()
	return tokens
}

// opensQuote reports whether a single quote starts a quoted section rather
// than being an apostrophe inside a word.
func opensQuote(current string, afterColon bool) bool {
	return current == "" || current == "-" || afterColon
}
