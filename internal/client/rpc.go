package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"distfs/internal/dfserrors"
	"distfs/internal/wire"
)

// RPCClient calls one procedure at a time against whichever name node
// base URL it is handed, the structured-RPC-over-HTTP transport of spec
// section 6. It does not itself decide which name node is master; a
// Session elects one by quorum on first use, caches it, and re-elects
// only after a transport-level failure, not before every call.
type RPCClient struct {
	HTTP *http.Client
}

func NewRPCClient() *RPCClient {
	return &RPCClient{HTTP: &http.Client{Timeout: 30 * time.Second}}
}

type errorEnvelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Call POSTs req to base+verb, attaching token as a bearer credential
// when non-empty, and decodes the response into resp. A non-2xx
// response is decoded as an errorEnvelope and reconstructed as a
// *dfserrors.Fault, so callers switch on dfserrors.Kind exactly as they
// would for a local call.
func (c *RPCClient) Call(ctx context.Context, base, verb, token string, req, resp any) error {
	body, err := wire.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/"+verb, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-distfs-rpc")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", verb, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("rpc %s: read response: %w", verb, err)
	}

	if httpResp.StatusCode >= 300 {
		var env errorEnvelope
		if err := wire.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("rpc %s: status %d, undecodable body", verb, httpResp.StatusCode)
		}
		return &dfserrors.Fault{Kind: dfserrors.Kind(env.Kind), Message: env.Message}
	}

	if resp == nil {
		return nil
	}
	return wire.Unmarshal(data, resp)
}
