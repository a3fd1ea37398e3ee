package librarian

import (
	"encoding/json"

	"github.com/nateschmiedehaus/librarian/internal/assembler"
)

// encodeEnvelope/decodeEnvelope serialize the response envelope for the
// Query Cache's persistent tier, which stores opaque response strings
// (§4.C).
func encodeEnvelope(env assembler.Envelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeEnvelope(raw string, out *assembler.Envelope) error {
	return json.Unmarshal([]byte(raw), out)
}
