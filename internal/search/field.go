// Package search models local message searches as immutable boolean
// condition trees and compiles them to parameterized SQL.
package search

import (
	"fmt"
	"strings"
)

// Field identifies a searchable message attribute.
type Field int

const (
	FieldSubject Field = iota + 1
	FieldSender
	FieldTo
	FieldCc
	FieldBcc
	FieldReplyTo
	FieldFlag
	FieldMessageContents
	FieldFolder
	FieldID
	FieldUID
	FieldThreadID
	FieldDate
	FieldAttachmentCount
	FieldDisplayClass
	FieldFlagged
	FieldRead
	FieldDeleted
	FieldNewMessage
	FieldIntegrate
	FieldVisible
)

// fieldKind groups fields by which attributes they accept.
type fieldKind int

const (
	kindText fieldKind = iota
	kindID
	kindNumber
	kindBool
	kindFullText
)

type fieldInfo struct {
	name   string
	column string
	kind   fieldKind
}

// fields is the column contract with the store schema. Columns that could be
// ambiguous across the joined tables are qualified.
var fields = map[Field]fieldInfo{
	FieldSubject:         {"SUBJECT", "subject", kindText},
	FieldSender:          {"SENDER", "sender_list", kindText},
	FieldTo:              {"TO", "to_list", kindText},
	FieldCc:              {"CC", "cc_list", kindText},
	FieldBcc:             {"BCC", "bcc_list", kindText},
	FieldReplyTo:         {"REPLY_TO", "reply_to_list", kindText},
	FieldFlag:            {"FLAG", "flags", kindText},
	FieldMessageContents: {"MESSAGE_CONTENTS", "", kindFullText},
	FieldFolder:          {"FOLDER", "messages.folder_id", kindID},
	FieldID:              {"ID", "messages.id", kindID},
	FieldUID:             {"UID", "uid", kindText},
	FieldThreadID:        {"THREAD_ID", "threads.root", kindID},
	FieldDate:            {"DATE", "date", kindNumber},
	FieldAttachmentCount: {"ATTACHMENT_COUNT", "attachment_count", kindNumber},
	FieldDisplayClass:    {"DISPLAY_CLASS", "display_class", kindText},
	FieldFlagged:         {"FLAGGED", "flagged", kindBool},
	FieldRead:            {"READ", "read", kindBool},
	FieldDeleted:         {"DELETED", "deleted", kindBool},
	FieldNewMessage:      {"NEW_MESSAGE", "new_message", kindBool},
	FieldIntegrate:       {"INTEGRATE", "integrate", kindBool},
	FieldVisible:         {"VISIBLE", "visible", kindBool},
}

// String returns the canonical upper-case name, e.g. "SENDER".
func (f Field) String() string {
	if info, ok := fields[f]; ok {
		return info.name
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// Column returns the storage column the field compiles to. It is empty for
// MESSAGE_CONTENTS and unknown fields.
func (f Field) Column() string {
	return fields[f].column
}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	_, ok := fields[f]
	return ok
}

// ParseField looks a field up by its canonical name (case-insensitive).
func ParseField(name string) (Field, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for f, info := range fields {
		if info.name == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown search field %q", name)
}

// Attribute is the comparison applied by a condition.
type Attribute int

const (
	Contains Attribute = iota + 1
	Equals
	NotEquals
)

var attributeNames = map[Attribute]string{
	Contains:  "CONTAINS",
	Equals:    "EQUALS",
	NotEquals: "NOT_EQUALS",
}

func (a Attribute) String() string {
	if name, ok := attributeNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Attribute(%d)", int(a))
}

// Valid reports whether a is a known attribute.
func (a Attribute) Valid() bool {
	_, ok := attributeNames[a]
	return ok
}

// ParseAttribute looks an attribute up by its canonical name (case-insensitive).
func ParseAttribute(name string) (Attribute, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for a, n := range attributeNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown search attribute %q", name)
}

// Supports reports whether the compiler accepts attribute a on field f.
func (f Field) Supports(a Attribute) bool {
	info, ok := fields[f]
	if !ok || !a.Valid() {
		return false
	}
	switch info.kind {
	case kindText, kindFullText:
		return true
	default:
		return a == Equals || a == NotEquals
	}
}

// Condition is a single (field, attribute, value) test. It is a value type
// and safe to share.
type Condition struct {
	Field     Field
	Attribute Attribute
	Value     string
}

// NewCondition is shorthand for a Condition literal.
func NewCondition(field Field, attr Attribute, value string) Condition {
	return Condition{Field: field, Attribute: attr, Value: value}
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %q", c.Field, c.Attribute, c.Value)
}
