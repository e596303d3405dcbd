package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// jsonCodec speaks JSON-RPC 2.0 single requests. rtorrent's jsonrpc
// plugin and compatible proxies accept the same method surface as
// XML-RPC.
type jsonCodec struct{}

// jsonRequestID numbers requests for response correlation.
var jsonRequestID atomic.Int64

func (jsonCodec) contentType() string { return "application/json" }

func (jsonCodec) encodeRequest(method string, args []any) ([]byte, error) {
	params := make([]any, len(args))
	for i, arg := range args {
		// Booleans travel as integers, matching the XML-RPC dialect.
		if b, ok := arg.(bool); ok {
			n := 0
			if b {
				n = 1
			}
			params[i] = n
			continue
		}
		params[i] = arg
	}
	return json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      jsonRequestID.Add(1),
		"method":  method,
		"params":  params,
	})
}

type jsonResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (jsonCodec) decodeResponse(data []byte) (any, error) {
	var resp jsonResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("malformed JSON-RPC response: %w", err)
	}
	if resp.Error != nil {
		return nil, &Fault{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("JSON-RPC response carries neither result nor error")
	}
	return decodeJSONValue(resp.Result)
}

// decodeJSONValue maps a JSON document onto the wire value types shared
// with the XML codec: integral numbers become int64, not float64.
func decodeJSONValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return convertJSONNumbers(v), nil
}

func convertJSONNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		for i := range val {
			val[i] = convertJSONNumbers(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = convertJSONNumbers(val[k])
		}
		return val
	default:
		return v
	}
}
