package rpc

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// xmlCodec speaks the rtorrent XML-RPC dialect: 64-bit integers travel
// as <i8> and booleans as integers.
type xmlCodec struct{}

func (xmlCodec) contentType() string { return "text/xml" }

func (xmlCodec) encodeRequest(method string, args []any) ([]byte, error) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&b, []byte(method)); err != nil {
		return nil, err
	}
	b.WriteString("</methodName><params>")
	for _, arg := range args {
		b.WriteString("<param>")
		if err := encodeXMLValue(&b, arg); err != nil {
			return nil, err
		}
		b.WriteString("</param>")
	}
	b.WriteString("</params></methodCall>")
	return []byte(b.String()), nil
}

func encodeXMLValue(b *strings.Builder, v any) error {
	b.WriteString("<value>")
	switch val := v.(type) {
	case nil:
		b.WriteString("<string></string>")
	case string:
		b.WriteString("<string>")
		if err := xml.EscapeText(b, []byte(val)); err != nil {
			return err
		}
		b.WriteString("</string>")
	case bool:
		// rtorrent rejects <boolean>; flags are plain integers.
		n := 0
		if val {
			n = 1
		}
		fmt.Fprintf(b, "<i8>%d</i8>", n)
	case int:
		fmt.Fprintf(b, "<i8>%d</i8>", val)
	case int64:
		fmt.Fprintf(b, "<i8>%d</i8>", val)
	case float64:
		fmt.Fprintf(b, "<double>%g</double>", val)
	case []byte:
		b.WriteString("<base64>")
		b.WriteString(base64.StdEncoding.EncodeToString(val))
		b.WriteString("</base64>")
	case []any:
		b.WriteString("<array><data>")
		for _, item := range val {
			if err := encodeXMLValue(b, item); err != nil {
				return err
			}
		}
		b.WriteString("</data></array>")
	case []string:
		b.WriteString("<array><data>")
		for _, item := range val {
			if err := encodeXMLValue(b, item); err != nil {
				return err
			}
		}
		b.WriteString("</data></array>")
	case map[string]any:
		b.WriteString("<struct>")
		for name, member := range val {
			b.WriteString("<member><name>")
			if err := xml.EscapeText(b, []byte(name)); err != nil {
				return err
			}
			b.WriteString("</name>")
			if err := encodeXMLValue(b, member); err != nil {
				return err
			}
			b.WriteString("</member>")
		}
		b.WriteString("</struct>")
	default:
		return fmt.Errorf("cannot encode %T as an XML-RPC value", v)
	}
	b.WriteString("</value>")
	return nil
}

// xmlValue mirrors the <value> element. Exactly one branch is set; bare
// character data inside <value> is an implicit string.
type xmlValue struct {
	Text    string     `xml:",chardata"`
	I4      *string    `xml:"i4"`
	Int     *string    `xml:"int"`
	I8      *string    `xml:"i8"`
	Boolean *string    `xml:"boolean"`
	Str     *string    `xml:"string"`
	Double  *string    `xml:"double"`
	Base64  *string    `xml:"base64"`
	Array   *xmlArray  `xml:"array"`
	Struct  *xmlStruct `xml:"struct"`
}

type xmlArray struct {
	Values []xmlValue `xml:"data>value"`
}

type xmlStruct struct {
	Members []xmlMember `xml:"member"`
}

type xmlMember struct {
	Name  string   `xml:"name"`
	Value xmlValue `xml:"value"`
}

type xmlMethodResponse struct {
	XMLName xml.Name   `xml:"methodResponse"`
	Params  []xmlValue `xml:"params>param>value"`
	Fault   *xmlValue  `xml:"fault>value"`
}

func (xmlCodec) decodeResponse(data []byte) (any, error) {
	var resp xmlMethodResponse
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("malformed XML-RPC response: %w", err)
	}

	if resp.Fault != nil {
		return nil, decodeXMLFault(resp.Fault)
	}
	if len(resp.Params) != 1 {
		return nil, fmt.Errorf("XML-RPC response carries %d params, want 1", len(resp.Params))
	}
	return decodeXMLValue(&resp.Params[0])
}

func decodeXMLFault(v *xmlValue) error {
	val, err := decodeXMLValue(v)
	if err != nil {
		return fmt.Errorf("malformed fault: %w", err)
	}
	members, ok := val.(map[string]any)
	if !ok {
		return fmt.Errorf("malformed fault value %T", val)
	}
	f := &Fault{}
	if code, ok := members["faultCode"].(int64); ok {
		f.Code = int(code)
	}
	if msg, ok := members["faultString"].(string); ok {
		f.Message = msg
	}
	return f
}

func decodeXMLValue(v *xmlValue) (any, error) {
	switch {
	case v.I4 != nil:
		return parseXMLInt(*v.I4)
	case v.Int != nil:
		return parseXMLInt(*v.Int)
	case v.I8 != nil:
		return parseXMLInt(*v.I8)
	case v.Boolean != nil:
		n, err := parseXMLInt(strings.TrimSpace(*v.Boolean))
		if err != nil {
			return nil, err
		}
		return n != 0, nil
	case v.Str != nil:
		return *v.Str, nil
	case v.Double != nil:
		f, err := strconv.ParseFloat(strings.TrimSpace(*v.Double), 64)
		if err != nil {
			return nil, fmt.Errorf("bad double %q", *v.Double)
		}
		return f, nil
	case v.Base64 != nil:
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*v.Base64))
		if err != nil {
			return nil, fmt.Errorf("bad base64 value: %w", err)
		}
		return data, nil
	case v.Array != nil:
		out := make([]any, 0, len(v.Array.Values))
		for i := range v.Array.Values {
			item, err := decodeXMLValue(&v.Array.Values[i])
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case v.Struct != nil:
		out := make(map[string]any, len(v.Struct.Members))
		for i := range v.Struct.Members {
			m := &v.Struct.Members[i]
			val, err := decodeXMLValue(&m.Value)
			if err != nil {
				return nil, err
			}
			out[m.Name] = val
		}
		return out, nil
	default:
		// <value>text</value> with no type element is a string.
		return v.Text, nil
	}
}

func parseXMLInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad integer %q", s)
	}
	return n, nil
}
