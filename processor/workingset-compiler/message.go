package workingsetcompiler

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/semstreams/message"
	"github.com/contextdb/wscompile/compiler"
)

// CompileRequestMessage wraps compiler.CompileRequest as a NATS message
// payload, following processor/context-builder/types.go's Schema/Validate/
// explicit-Marshal pattern.
type CompileRequestMessage struct {
	compiler.CompileRequest
}

func (r *CompileRequestMessage) Schema() message.Type {
	return message.Type{Domain: "compile", Category: "request", Version: "v1"}
}

func (r *CompileRequestMessage) Validate() error {
	if r.Intent == "" && len(r.QuerySignals) == 0 {
		return fmt.Errorf("intent or query_signals required")
	}
	if r.BudgetTokens <= 0 {
		return fmt.Errorf("budget_tokens must be positive")
	}
	return nil
}

// MarshalJSON/UnmarshalJSON go through a local alias type, which has none
// of CompileRequestMessage's methods, so encoding/json does not recurse
// back into them.
func (r CompileRequestMessage) MarshalJSON() ([]byte, error) {
	type alias CompileRequestMessage
	return json.Marshal(alias(r))
}

func (r *CompileRequestMessage) UnmarshalJSON(data []byte) error {
	type alias CompileRequestMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = CompileRequestMessage(a)
	return nil
}

// CompileResponseMessage wraps compiler.CompileResponse as a NATS
// message payload.
type CompileResponseMessage struct {
	compiler.CompileResponse
	Error string `json:"error,omitempty"`
}

func (r *CompileResponseMessage) Schema() message.Type {
	return message.Type{Domain: "compile", Category: "response", Version: "v1"}
}

func (r *CompileResponseMessage) Validate() error {
	return nil
}

func (r CompileResponseMessage) MarshalJSON() ([]byte, error) {
	type alias CompileResponseMessage
	return json.Marshal(alias(r))
}

func (r *CompileResponseMessage) UnmarshalJSON(data []byte) error {
	type alias CompileResponseMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = CompileResponseMessage(a)
	return nil
}
