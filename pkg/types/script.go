package types

import (
	"encoding/hex"
	"encoding/json"
)

// ScriptType identifies the type of locking script.
// The chain-state engine stores scripts opaquely and never evaluates them.
type ScriptType uint8

const (
	ScriptTypeP2PKH  ScriptType = 0x01 // Pay to public key hash
	ScriptTypeP2SH   ScriptType = 0x02 // Pay to script hash
	ScriptTypeBurn   ScriptType = 0x11 // Unspendable
	ScriptTypeOpaque ScriptType = 0xF0 // Carried without interpretation
)

// String returns a human-readable name for the script type.
func (st ScriptType) String() string {
	switch st {
	case ScriptTypeP2PKH:
		return "P2PKH"
	case ScriptTypeP2SH:
		return "P2SH"
	case ScriptTypeBurn:
		return "Burn"
	case ScriptTypeOpaque:
		return "Opaque"
	default:
		return "Unknown"
	}
}

// Known reports whether st is one of the defined script types.
func (st ScriptType) Known() bool {
	switch st {
	case ScriptTypeP2PKH, ScriptTypeP2SH, ScriptTypeBurn, ScriptTypeOpaque:
		return true
	}
	return false
}

// Script defines the locking condition for a UTXO.
type Script struct {
	Type ScriptType `json:"type"`
	Data []byte     `json:"data"`
}

type scriptJSON struct {
	Type ScriptType `json:"type"`
	Data string     `json:"data"`
}

// MarshalJSON encodes the script with hex-encoded data.
func (s Script) MarshalJSON() ([]byte, error) {
	return json.Marshal(scriptJSON{
		Type: s.Type,
		Data: hex.EncodeToString(s.Data),
	})
}

// UnmarshalJSON decodes a script with hex-encoded data.
func (s *Script) UnmarshalJSON(data []byte) error {
	var j scriptJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	s.Type = j.Type
	s.Data = nil
	if j.Data != "" {
		b, err := hex.DecodeString(j.Data)
		if err != nil {
			return err
		}
		s.Data = b
	}
	return nil
}
