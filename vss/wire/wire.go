/*
wire.go - Protobuf encoding for the storage protocol messages

PURPOSE:
  Encodes and decodes the externally defined protobuf schema carried in
  HTTP bodies. The schema is small and frozen, so the codec is maintained
  by hand on top of protowire rather than generated: field tags below are
  the wire contract and must never change.

FIELD TAGS:
  KeyValue                 1:key 2:version 3:value
  GetObjectRequest         1:store_id 2:key
  GetObjectResponse        2:value
  PutObjectRequest         1:store_id 2:global_version 3:transaction_items
                           4:delete_items
  DeleteObjectRequest      1:store_id 2:key_value
  ListKeyVersionsRequest   1:store_id 2:key_prefix 3:page_size 4:page_token
  ListKeyVersionsResponse  1:key_versions 2:next_page_token 3:global_version
  ErrorResponse            1:error_code 2:message

DECODING:
  Unknown fields are skipped, matching standard protobuf semantics.
  Malformed input yields an error; the HTTP layer turns it into a plain
  400 response.

SEE ALSO:
  - vss/types.go: the in-memory message structs
  - api/handlers.go, api/server.go: the callers
*/
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lightningdevkit/vss-server/vss"
)

func consumeErr(n int) error {
	if err := protowire.ParseError(n); err != nil {
		return fmt.Errorf("malformed protobuf: %w", err)
	}
	return nil
}

// =============================================================================
// KEY VALUE
// =============================================================================

func appendKeyValue(b []byte, kv *vss.KeyValue) []byte {
	if kv.Key != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, kv.Key)
	}
	if kv.Version != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(kv.Version))
	}
	if len(kv.Value) > 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, kv.Value)
	}
	return b
}

func unmarshalKeyValue(b []byte, kv *vss.KeyValue) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return consumeErr(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return consumeErr(n)
			}
			kv.Key = v
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return consumeErr(n)
			}
			kv.Version = int64(v)
			b = b[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return consumeErr(n)
			}
			kv.Value = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return consumeErr(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// MarshalKeyValue encodes a KeyValue message.
func MarshalKeyValue(kv *vss.KeyValue) []byte {
	return appendKeyValue(nil, kv)
}

// UnmarshalKeyValue decodes a KeyValue message.
func UnmarshalKeyValue(b []byte) (*vss.KeyValue, error) {
	kv := &vss.KeyValue{}
	if err := unmarshalKeyValue(b, kv); err != nil {
		return nil, err
	}
	return kv, nil
}

// =============================================================================
// GET
// =============================================================================

// MarshalGetObjectRequest encodes a GetObjectRequest message.
func MarshalGetObjectRequest(m *vss.GetObjectRequest) []byte {
	var b []byte
	if m.StoreID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.StoreID)
	}
	if m.Key != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.Key)
	}
	return b
}

// UnmarshalGetObjectRequest decodes a GetObjectRequest message.
func UnmarshalGetObjectRequest(b []byte) (*vss.GetObjectRequest, error) {
	m := &vss.GetObjectRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.StoreID = v
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.Key = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// MarshalGetObjectResponse encodes a GetObjectResponse message.
func MarshalGetObjectResponse(m *vss.GetObjectResponse) []byte {
	var b []byte
	if m.Value != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, appendKeyValue(nil, m.Value))
	}
	return b
}

// UnmarshalGetObjectResponse decodes a GetObjectResponse message.
func UnmarshalGetObjectResponse(b []byte) (*vss.GetObjectResponse, error) {
	m := &vss.GetObjectResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
		switch {
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			kv := &vss.KeyValue{}
			if err := unmarshalKeyValue(v, kv); err != nil {
				return nil, err
			}
			m.Value = kv
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// =============================================================================
// PUT
// =============================================================================

// MarshalPutObjectRequest encodes a PutObjectRequest message.
func MarshalPutObjectRequest(m *vss.PutObjectRequest) []byte {
	var b []byte
	if m.StoreID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.StoreID)
	}
	if m.GlobalVersion != nil {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.GlobalVersion))
	}
	for i := range m.TransactionItems {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, appendKeyValue(nil, &m.TransactionItems[i]))
	}
	for i := range m.DeleteItems {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, appendKeyValue(nil, &m.DeleteItems[i]))
	}
	return b
}

// UnmarshalPutObjectRequest decodes a PutObjectRequest message.
func UnmarshalPutObjectRequest(b []byte) (*vss.PutObjectRequest, error) {
	m := &vss.PutObjectRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.StoreID = v
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			gv := int64(v)
			m.GlobalVersion = &gv
			b = b[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			var kv vss.KeyValue
			if err := unmarshalKeyValue(v, &kv); err != nil {
				return nil, err
			}
			m.TransactionItems = append(m.TransactionItems, kv)
			b = b[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			var kv vss.KeyValue
			if err := unmarshalKeyValue(v, &kv); err != nil {
				return nil, err
			}
			m.DeleteItems = append(m.DeleteItems, kv)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// MarshalPutObjectResponse encodes a PutObjectResponse message.
func MarshalPutObjectResponse(*vss.PutObjectResponse) []byte { return []byte{} }

// UnmarshalPutObjectResponse decodes a PutObjectResponse message.
func UnmarshalPutObjectResponse(b []byte) (*vss.PutObjectResponse, error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
	}
	return &vss.PutObjectResponse{}, nil
}

// =============================================================================
// DELETE
// =============================================================================

// MarshalDeleteObjectRequest encodes a DeleteObjectRequest message.
func MarshalDeleteObjectRequest(m *vss.DeleteObjectRequest) []byte {
	var b []byte
	if m.StoreID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.StoreID)
	}
	if m.KeyValue != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, appendKeyValue(nil, m.KeyValue))
	}
	return b
}

// UnmarshalDeleteObjectRequest decodes a DeleteObjectRequest message.
func UnmarshalDeleteObjectRequest(b []byte) (*vss.DeleteObjectRequest, error) {
	m := &vss.DeleteObjectRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.StoreID = v
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			kv := &vss.KeyValue{}
			if err := unmarshalKeyValue(v, kv); err != nil {
				return nil, err
			}
			m.KeyValue = kv
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// MarshalDeleteObjectResponse encodes a DeleteObjectResponse message.
func MarshalDeleteObjectResponse(*vss.DeleteObjectResponse) []byte { return []byte{} }

// UnmarshalDeleteObjectResponse decodes a DeleteObjectResponse message.
func UnmarshalDeleteObjectResponse(b []byte) (*vss.DeleteObjectResponse, error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
	}
	return &vss.DeleteObjectResponse{}, nil
}

// =============================================================================
// LIST
// =============================================================================

// MarshalListKeyVersionsRequest encodes a ListKeyVersionsRequest message.
func MarshalListKeyVersionsRequest(m *vss.ListKeyVersionsRequest) []byte {
	var b []byte
	if m.StoreID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.StoreID)
	}
	if m.KeyPrefix != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, *m.KeyPrefix)
	}
	if m.PageSize != nil {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*m.PageSize)))
	}
	if m.PageToken != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, *m.PageToken)
	}
	return b
}

// UnmarshalListKeyVersionsRequest decodes a ListKeyVersionsRequest message.
func UnmarshalListKeyVersionsRequest(b []byte) (*vss.ListKeyVersionsRequest, error) {
	m := &vss.ListKeyVersionsRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.StoreID = v
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.KeyPrefix = &v
			b = b[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			ps := int32(v)
			m.PageSize = &ps
			b = b[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.PageToken = &v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// MarshalListKeyVersionsResponse encodes a ListKeyVersionsResponse message.
func MarshalListKeyVersionsResponse(m *vss.ListKeyVersionsResponse) []byte {
	var b []byte
	for i := range m.KeyVersions {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, appendKeyValue(nil, &m.KeyVersions[i]))
	}
	if m.NextPageToken != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, *m.NextPageToken)
	}
	if m.GlobalVersion != nil {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.GlobalVersion))
	}
	return b
}

// UnmarshalListKeyVersionsResponse decodes a ListKeyVersionsResponse message.
func UnmarshalListKeyVersionsResponse(b []byte) (*vss.ListKeyVersionsResponse, error) {
	m := &vss.ListKeyVersionsResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			var kv vss.KeyValue
			if err := unmarshalKeyValue(v, &kv); err != nil {
				return nil, err
			}
			m.KeyVersions = append(m.KeyVersions, kv)
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.NextPageToken = &v
			b = b[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			gv := int64(v)
			m.GlobalVersion = &gv
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// MarshalErrorResponse encodes an ErrorResponse message.
func MarshalErrorResponse(m *vss.ErrorResponse) []byte {
	var b []byte
	if m.ErrorCode != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.ErrorCode))
	}
	if m.Message != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.Message)
	}
	return b
}

// UnmarshalErrorResponse decodes an ErrorResponse message.
func UnmarshalErrorResponse(b []byte) (*vss.ErrorResponse, error) {
	m := &vss.ErrorResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, consumeErr(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.ErrorCode = vss.ErrorCode(int32(v))
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			m.Message = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, consumeErr(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}
