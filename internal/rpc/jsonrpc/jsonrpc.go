// Package jsonrpc implements the wire codec for ufa's JSON-RPC dialect
// (spec §4.5): parsing a Message from a byte buffer that may be
// incomplete, invalid, or too large, and serializing one back onto the
// wire. It is grounded on original_source/src/json/jsonrpc_parser.c, which
// hand-rolls a jsmn-style tokenizer because the project predates a JSON
// library in its ecosystem; Go's encoding/json already gives a safe,
// well-tested tokenizer with json.Decoder.UseNumber(), so this package
// reuses it rather than re-inventing one, while preserving the same
// outcome vocabulary (Ok/Partial/Invalid/NoMem) and int-vs-double
// discrimination by literal presence of a decimal point.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/henriquetft/ufa/internal/ufaerr"
)

// Outcome classifies the result of Parse, mirroring enum ufa_parser_result.
type Outcome int

const (
	// Ok means a complete, well-formed message was parsed.
	Ok Outcome = iota
	// Partial means the buffer holds the prefix of a message; the
	// caller should keep reading from the socket and retry.
	Partial
	// Invalid means the buffer can never become valid JSON-RPC.
	Invalid
	// NoMem means the buffer exceeded MaxMessageBytes, the token-budget
	// analogue of jsmn's fixed MAX_TOKENS arena.
	NoMem
)

// MaxMessageBytes bounds a single message, standing in for jsmn's
// MAX_TOKENS(4096)-token parse arena in the original implementation.
const MaxMessageBytes = 256 * 1024

// RPCError is the JSON-RPC "error" member.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// Message is the method/id/params/result/error record every request and
// response is parsed into and serialized from (spec §4.5).
type Message struct {
	Version string                 `json:"jsonrpc,omitempty"`
	Method  string                 `json:"method,omitempty"`
	ID      string                 `json:"id,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   *RPCError              `json:"error,omitempty"`
}

// wireMessage mirrors Message but keeps params/result as raw JSON so they
// can be re-decoded through a number-preserving decoder.
type wireMessage struct {
	Version string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method,omitempty"`
	ID      string          `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Parse attempts to decode a single JSON-RPC message from data. Ok returns
// the parsed Message; any other outcome returns a nil Message.
func Parse(data []byte) (*Message, Outcome) {
	if len(data) > MaxMessageBytes {
		return nil, NoMem
	}
	trimmed := bytes.TrimRight(data, "\x00")
	if len(bytes.TrimSpace(trimmed)) == 0 {
		return nil, Partial
	}

	var wire wireMessage
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&wire); err != nil {
		return nil, classifyDecodeErr(err)
	}

	params, err := decodeObject(wire.Params)
	if err != nil {
		return nil, Invalid
	}
	result, err := decodeObject(wire.Result)
	if err != nil {
		return nil, Invalid
	}

	return &Message{
		Version: wire.Version,
		Method:  wire.Method,
		ID:      wire.ID,
		Params:  params,
		Result:  result,
		Error:   wire.Error,
	}, Ok
}

func classifyDecodeErr(err error) Outcome {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Partial
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) && strings.Contains(syn.Error(), "unexpected end of JSON input") {
		return Partial
	}
	return Invalid
}

// decodeObject decodes raw (a JSON object or empty) with UseNumber so
// that integers and decimals stay distinguishable after decoding,
// matching jsmn_parser.c's read_primitive int/double branch.
func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode serializes msg as compact JSON with a trailing NUL byte, the
// message delimiter original_source's socket server writes after every
// response (see send_response_* in jsonrpc_server.c).
func (m *Message) Encode() ([]byte, error) {
	if m.Version == "" {
		m.Version = "2.0"
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Internal, err, "encode jsonrpc message")
	}
	return append(body, 0), nil
}

// IsInteger reports whether a json.Number parsed from a params/result
// object was written without a decimal point, mirroring
// jsmn_parser.c's `ufa_str_count(value_as_str, ".")` check.
func IsInteger(n json.Number) bool {
	return !strings.Contains(n.String(), ".")
}

// GetString fetches a string-valued param/result field.
func GetString(values map[string]interface{}, key string) (string, bool) {
	v, ok := values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool fetches a bool-valued param/result field.
func GetBool(values map[string]interface{}, key string) (bool, bool) {
	v, ok := values[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetStringSlice fetches an array-of-string param/result field.
func GetStringSlice(values map[string]interface{}, key string) ([]string, bool) {
	v, ok := values[key]
	if !ok {
		return nil, false
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// GetObjectSlice fetches an array-of-object param/result field (used for
// search's filter_attrs).
func GetObjectSlice(values map[string]interface{}, key string) ([]map[string]interface{}, bool) {
	v, ok := values[key]
	if !ok {
		return nil, false
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		out = append(out, obj)
	}
	return out, true
}
