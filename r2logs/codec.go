package r2logs

import (
	"errors"
	"io"

	jsoniter "github.com/json-iterator/go"
)

const prettyIndent = 2

// prettyCodec streams tokens from a compact record into an indented one.
var prettyCodec = jsoniter.Config{
	IndentionStep: prettyIndent,
	EscapeHTML:    false,
}.Froze()

// Pretty re-serializes a JSON document with two-space indentation.
//
// Object keys keep their original order and numbers keep their original
// text, so Pretty(Pretty(x)) == Pretty(x). Returns an error if data is not
// a single JSON value.
func Pretty(data []byte) ([]byte, error) {
	iter := prettyCodec.BorrowIterator(data)
	defer prettyCodec.ReturnIterator(iter)
	// A fresh stream: a failed copy leaves a pooled stream mid-indent.
	stream := jsoniter.NewStream(prettyCodec, nil, 2*len(data)+64)

	copyValue(iter, stream)
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return nil, iter.Error
	}

	// Anything but whitespace after the value leaves Error unset.
	iter.WhatIsNext()
	if !errors.Is(iter.Error, io.EOF) {
		return nil, errors.New("pretty: trailing data after JSON value")
	}
	if stream.Error != nil {
		return nil, stream.Error
	}

	out := make([]byte, len(stream.Buffer()))
	copy(out, stream.Buffer())
	return out, nil
}

func copyValue(iter *jsoniter.Iterator, stream *jsoniter.Stream) {
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		empty := true
		iter.ReadMapCB(func(iter *jsoniter.Iterator, field string) bool {
			if empty {
				stream.WriteObjectStart()
				empty = false
			} else {
				stream.WriteMore()
			}
			stream.WriteObjectField(field)
			copyValue(iter, stream)
			return iter.Error == nil
		})
		if empty {
			stream.WriteEmptyObject()
		} else {
			stream.WriteObjectEnd()
		}
	case jsoniter.ArrayValue:
		empty := true
		iter.ReadArrayCB(func(iter *jsoniter.Iterator) bool {
			if empty {
				stream.WriteArrayStart()
				empty = false
			} else {
				stream.WriteMore()
			}
			copyValue(iter, stream)
			return iter.Error == nil
		})
		if empty {
			stream.WriteEmptyArray()
		} else {
			stream.WriteArrayEnd()
		}
	case jsoniter.StringValue:
		stream.WriteString(iter.ReadString())
	case jsoniter.NumberValue:
		stream.WriteRaw(string(iter.ReadNumber()))
	case jsoniter.BoolValue:
		stream.WriteBool(iter.ReadBool())
	case jsoniter.NilValue:
		iter.ReadNil()
		stream.WriteNil()
	default:
		iter.ReportError("pretty", "expected JSON value")
	}
}
