package search

import (
	"reflect"
	"testing"
)

func contents(v string) Node { return NewLeaf(cond(FieldMessageContents, Contains, v)) }

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Node
	}{
		{
			name:  "empty",
			query: "   ",
			want:  nil,
		},
		{
			name:  "from operator",
			query: "from:Alice@Example.com",
			want:  NewLeaf(cond(FieldSender, Contains, "alice@example.com")),
		},
		{
			name:  "bare words are ANDed full-text terms",
			query: "hello world",
			want:  NewBuilder(cond(FieldMessageContents, Contains, "hello")).And(cond(FieldMessageContents, Contains, "world")).Build(),
		},
		{
			name:  "quoted phrase keeps quotes for FTS",
			query: `"hello world"`,
			want:  contents(`"hello world"`),
		},
		{
			name:  "single quoted phrase is normalized",
			query: `'hello world'`,
			want:  contents(`"hello world"`),
		},
		{
			name:  "apostrophe inside a word",
			query: `don't`,
			want:  contents(`"don't"`),
		},
		{
			name:  "subject with quoted value",
			query: `subject:"meeting notes" to:bob`,
			want: NewBuilder(cond(FieldSubject, Contains, "meeting notes")).
				And(cond(FieldTo, Contains, "bob")).Build(),
		},
		{
			name:  "folder by name",
			query: `in:"Project X"`,
			want:  NewLeaf(cond(FieldFolder, Equals, "Project X")),
		},
		{
			name:  "is and has",
			query: "is:unread is:starred has:attachment",
			want: NewBuilder(cond(FieldRead, NotEquals, "1")).
				And(cond(FieldFlagged, Equals, "1")).
				And(cond(FieldAttachmentCount, NotEquals, "0")).Build(),
		},
		{
			name:  "negation",
			query: "-from:spam.com report",
			want: BuilderFrom(&Not{Child: NewLeaf(cond(FieldSender, Contains, "spam.com"))}).
				And(cond(FieldMessageContents, Contains, "report")).Build(),
		},
		{
			name:  "negated phrase",
			query: `-"out of office"`,
			want:  &Not{Child: contents(`"out of office"`)},
		},
		{
			name:  "OR binds tighter than AND",
			query: "from:alice OR from:bob budget",
			want: NewBuilder(cond(FieldSender, Contains, "alice")).
				Or(cond(FieldSender, Contains, "bob")).
				And(cond(FieldMessageContents, Contains, "budget")).Build(),
		},
		{
			name:  "OR chain",
			query: "a OR b OR c",
			want: NewBuilder(cond(FieldMessageContents, Contains, "a")).
				Or(cond(FieldMessageContents, Contains, "b")).
				Or(cond(FieldMessageContents, Contains, "c")).Build(),
		},
		{
			name:  "leading and dangling OR are ignored",
			query: "OR a OR",
			want:  contents("a"),
		},
		{
			name:  "unknown operator becomes a phrase",
			query: "foo:bar",
			want:  contents(`"foo:bar"`),
		},
		{
			name:  "unknown is value is dropped",
			query: "is:important hello",
			want:  contents("hello"),
		},
		{
			name:  "class is upper-cased",
			query: "class:first_class",
			want:  NewLeaf(cond(FieldDisplayClass, Equals, "FIRST_CLASS")),
		},
		{
			name:  "FTS keywords are matched as text",
			query: "AND not",
			want:  NewBuilder(cond(FieldMessageContents, Contains, `"AND"`)).And(cond(FieldMessageContents, Contains, `"not"`)).Build(),
		},
		{
			name:  "punctuation becomes a phrase",
			query: "(draft",
			want:  contents(`"(draft"`),
		},
		{
			name:  "prefix word passes through",
			query: "budg*",
			want:  contents("budg*"),
		},
		{
			name:  "punctuation only is dropped",
			query: "( hello )",
			want:  contents("hello"),
		},
		{
			name:  "contents operator",
			query: `contents:"year end"`,
			want:  contents(`"year end"`),
		},
		{
			name:  "negated keyword",
			query: "-NEAR",
			want:  &Not{Child: contents(`"NEAR"`)},
		},
		{
			name:  "unterminated quote",
			query: `"open phrase`,
			want:  contents(`"open phrase"`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertTreeEqual(t, Parse(tt.query), tt.want)
		})
	}
}

func TestParse_CompilesToExpectedSQL(t *testing.T) {
	assertCompiled(t, Parse("-subject:test from:example.com is:flagged"),
		"((NOT (subject LIKE ?)) AND (sender_list LIKE ?)) AND (flagged = ?)",
		"%test%", "%example.com%", "1")
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{`a  b`, []string{"a", "b"}},
		{`subject:"x y" z`, []string{`subject:"x y"`, "z"}},
		{`-"x y"`, []string{`-"x y"`}},
		{`a"b c"`, []string{"a", `"b c"`}},
		{"a\tb", []string{"a", "b"}},
	}
	for _, tt := range tests {
		if got := tokenize(tt.query); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("tokenize(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
