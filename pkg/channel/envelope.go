package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformed is returned by Decode for input that is not a valid envelope.
var ErrMalformed = errors.New("channel: malformed envelope")

// Envelope is the wire unit of the channel protocol: one JSON object per
// message, {"channel": <string>, "value": <any | null>}. Inbound envelopes
// may name the channel with a number, which is read as its decimal string.
type Envelope struct {
	Channel string `json:"channel"`
	Value   any    `json:"value"`
}

const envelopeSchema = `{
  "type": "object",
  "required": ["channel"],
  "properties": {
    "channel": {"type": ["string", "number"]}
  }
}`

var schema = mustSchema(envelopeSchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("channel: invalid envelope schema: %v", err))
	}
	return s
}

// Encode serializes a message for channel name. A nil value is encoded as
// JSON null.
func Encode(name string, value any) ([]byte, error) {
	data, err := json.Marshal(Envelope{Channel: name, Value: value})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message for channel %q: %w", name, err)
	}
	return data, nil
}

// Decode parses raw as an envelope. Anything that is not a JSON object with
// a string or number "channel" member yields ErrMalformed. A missing "value"
// decodes as nil.
func Decode(raw []byte) (Envelope, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, result.Errors())
	}

	var wire struct {
		Channel json.RawMessage `json:"channel"`
		Value   any             `json:"value"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	env := Envelope{Value: wire.Value}
	if len(wire.Channel) > 0 && wire.Channel[0] == '"' {
		if err := json.Unmarshal(wire.Channel, &env.Channel); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return env, nil
	}
	n, err := strconv.ParseFloat(string(wire.Channel), 64)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: channel %s: %v", ErrMalformed, wire.Channel, err)
	}
	env.Channel = canonical(n)
	return env, nil
}
