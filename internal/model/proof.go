package model

// ProofDomain describes the serving domain as presented by the wallet.
// LengthBytes is carried separately because the wallet signs over it verbatim.
type ProofDomain struct {
	LengthBytes uint32 `json:"lengthBytes"`
	Value       string `json:"value"`
}

// ProofDetails is the signed portion of a ton-proof-item-v2 payload.
type ProofDetails struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Signature string      `json:"signature"` // base64
	Payload   string      `json:"payload"`   // the challenge string issued by the backend
	StateInit string      `json:"state_init"` // base64 BOC, optional
}

// TonProof is the full ownership-proof envelope a wallet submits at login.
// It is verified in the call it arrives in and never persisted.
type TonProof struct {
	Address string       `json:"address"` // raw or user-friendly form
	Network string       `json:"network,omitempty"`
	Proof   ProofDetails `json:"proof"`
}

// Sign-data payload type tags.
const (
	SignDataTypeText   = "text"
	SignDataTypeBinary = "binary"
	SignDataTypeCell   = "cell"
)

// SignDataPayload is a tagged union over the three sign-data payload
// variants. Exactly one of the variant fields is meaningful, selected by
// Type; the hashing routine matches on the tag exhaustively.
type SignDataPayload struct {
	Type string `json:"type"` // "text", "binary" or "cell"

	// text
	Text string `json:"text,omitempty"`

	// binary
	Bytes string `json:"bytes,omitempty"` // base64

	// cell
	Schema string `json:"schema,omitempty"` // TL-B schema string, crc32-bound into the hash
	Cell   string `json:"cell,omitempty"`   // base64 BOC
}

// SignDataEnvelope is a detached signature over a structured application
// payload, distinct from the baseline ownership proof. Stateless: verified
// the same call it arrives in.
type SignDataEnvelope struct {
	Signature string          `json:"signature"` // base64
	Address   string          `json:"address"`
	Timestamp int64           `json:"timestamp"`
	Domain    string          `json:"domain"`
	Payload   SignDataPayload `json:"payload"`
	PublicKey string          `json:"public_key,omitempty"` // hex, declared by the wallet
	StateInit string          `json:"state_init,omitempty"` // base64 BOC
}
