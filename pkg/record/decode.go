package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Decode reads either a JSON array of objects or newline-delimited JSON
// objects from r.
func Decode(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(br)
	if first == '[' {
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return FromValue(v)
	}
	if first != '{' {
		return nil, fmt.Errorf("%w: unexpected leading byte %q", ErrNotRecords, first)
	}
	var out []Record
	for {
		var v interface{}
		err := dec.Decode(&v)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: line %d is %T", ErrNotRecords, len(out)+1, v)
		}
		out = append(out, Record(m))
	}
	// A lone object is an API error payload, not a stream of records.
	if len(out) == 1 && looksLikeError(out[0]) {
		return nil, fmt.Errorf("%w: %s", ErrNotRecords, errorText(out[0]))
	}
	return out, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

func looksLikeError(r Record) bool {
	if len(r) > 3 {
		return false
	}
	_, hasErr := r["error"]
	_, hasMsg := r["message"]
	return hasErr || hasMsg
}

func errorText(r Record) string {
	if s := String(r, "error"); s != "" {
		return s
	}
	return String(r, "message")
}
