package ledgerv1

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of the ledger messages.
const CodecName = "json"

// Codec marshals ledger messages as JSON on the gRPC wire.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (Codec) Name() string { return CodecName }

func init() { encoding.RegisterCodec(Codec{}) }
