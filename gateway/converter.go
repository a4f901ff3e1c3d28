package gateway

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/marsevilspirit/greeter/protocol"
)

const (
	HeaderSerializeType = "X-RPC-Serialize-Type"
	HeaderOneway        = "X-RPC-Oneway"
	HeaderMeta          = "X-RPC-Meta"
	HeaderError         = "X-RPC-Error"
	HeaderSeq           = "X-RPC-Seq"
)

var serializeTypes = map[string]protocol.SerializeType{
	"raw":      protocol.SerializeNone,
	"json":     protocol.JSON,
	"protobuf": protocol.ProtoBuffer,
	"msgpack":  protocol.MsgPack,
}

// parseSerializeType accepts a name (json, msgpack, protobuf, raw) or the
// numeric wire value. Empty means JSON.
func parseSerializeType(s string) (protocol.SerializeType, error) {
	if s == "" {
		return protocol.JSON, nil
	}
	if st, ok := serializeTypes[strings.ToLower(s)]; ok {
		return st, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return protocol.SerializeType(n), nil
}

// HTTPRequest2RPCRequest builds the RPC request for servicePath.serviceMethod
// from an HTTP request. The body is the payload as is.
func HTTPRequest2RPCRequest(r *http.Request, servicePath, serviceMethod string) (*protocol.Message, error) {
	req := protocol.NewMessage()
	req.SetMessageType(protocol.Request)
	req.ServicePath = servicePath
	req.ServiceMethod = serviceMethod

	h := r.Header

	st, err := parseSerializeType(h.Get(HeaderSerializeType))
	if err != nil {
		return nil, err
	}
	req.SetSerializeType(st)

	if oneway, _ := strconv.ParseBool(h.Get(HeaderOneway)); oneway {
		req.SetOneway(true)
	}

	if h.Get("Content-Encoding") == "gzip" {
		req.SetCompressType(protocol.Gzip)
	}

	if meta := h.Get(HeaderMeta); meta != "" {
		values, err := url.ParseQuery(meta)
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			if len(v) > 0 {
				req.Metadata[k] = v[0]
			}
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	req.Payload = payload

	return req, nil
}

// urlencode encodes data as a query string with sorted keys.
func urlencode(data map[string]string) string {
	if len(data) == 0 {
		return ""
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(url.QueryEscape(k))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(data[k]))
		buf.WriteByte('&')
	}
	s := buf.String()
	return s[:len(s)-1]
}
