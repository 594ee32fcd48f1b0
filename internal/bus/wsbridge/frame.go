package wsbridge

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/torosent/spamfire/internal/bus"
)

// Frame operations.
const (
	opRegister   = "register"
	opRegistered = "registered"
	opSend       = "send"
	opDeliver    = "deliver"
	opError      = "error"
)

// frame is the JSON envelope exchanged over the websocket.
type frame struct {
	Op      string            `json:"op"`
	Name    string            `json:"name,omitempty"`
	Message *bus.Message      `json:"message,omitempty"`
	Trace   map[string]string `json:"trace,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// peekOp reads the op field without decoding the whole frame.
func peekOp(data []byte) (string, error) {
	op := gjson.GetBytes(data, "op")
	if !op.Exists() || op.Type != gjson.String {
		return "", fmt.Errorf("%w: missing op", ErrBadFrame)
	}
	return op.String(), nil
}

func decodeFrame(data []byte, want string) (frame, error) {
	op, err := peekOp(data)
	if err != nil {
		return frame{}, err
	}
	if want != "" && op != want {
		if op == opError {
			return frame{}, fmt.Errorf("%w: %s", ErrRemote, gjson.GetBytes(data, "error").String())
		}
		return frame{}, fmt.Errorf("%w: got op %q, want %q", ErrBadFrame, op, want)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return f, nil
}
