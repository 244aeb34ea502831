package xlmeta

import (
	"bytes"
	"encoding/json"

	"github.com/gridstore/core/internal/errs"
)

func jsonMarshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func jsonUnmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// alias avoids MarshalJSON/UnmarshalJSON recursing into themselves via the
// embedded struct's own methods.
type xlMetaAlias XLMeta

// Marshal serializes m to its canonical JSON form.
func Marshal(m *XLMeta) ([]byte, error) {
	const op = "xlmeta.Marshal"
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf, err := json.Marshal((*xlMetaAlias)(m))
	if err != nil {
		return nil, errs.New(errs.InvalidMeta, op, err)
	}
	if m.Version >= 2 && len(m.Unknown) > 0 {
		buf, err = mergeUnknown(buf, m.Unknown)
		if err != nil {
			return nil, errs.New(errs.InvalidMeta, op, err)
		}
	}
	return buf, nil
}

// Unmarshal parses a serialized xl.meta document. distribution and
// checksums are required to have exactly erasure.data+erasure.parity
// entries for non-inline, non-delete-marker records; any other failure to
// parse a required field is InvalidMeta.
func Unmarshal(data []byte) (*XLMeta, error) {
	const op = "xlmeta.Unmarshal"
	var m xlMetaAlias
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.New(errs.InvalidMeta, op, err)
	}
	out := XLMeta(m)
	if out.Format == "" || out.Version == 0 {
		return nil, errs.New(errs.InvalidMeta, op, errBadFormat)
	}
	if out.Version >= 2 {
		unknown, err := extractUnknown(data)
		if err != nil {
			return nil, errs.New(errs.InvalidMeta, op, err)
		}
		out.Unknown = unknown
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

var errBadFormat = fmtError("missing required version/format field")

type fmtErr string

func (e fmtErr) Error() string { return string(e) }
func fmtError(s string) error { return fmtErr(s) }

// knownTopLevelFields mirrors the json tags on XLMeta, used to separate
// unknown (forward-compat) top-level fields from known ones.
var knownTopLevelFields = map[string]bool{
	"version": true, "format": true, "bucket": true, "key": true,
	"stat": true, "erasure": true, "meta": true, "versioning": true,
	"inline_data": true,
}

func extractUnknown(data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	unknown := make(map[string]interface{})
	for k, v := range raw {
		if !knownTopLevelFields[k] {
			unknown[k] = v
		}
	}
	if len(unknown) == 0 {
		return nil, nil
	}
	return unknown, nil
}

func mergeUnknown(known []byte, unknown map[string]interface{}) ([]byte, error) {
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range unknown {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(merged); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Clone deep-copies m. Used by the metadata cache, which exclusively owns
// every cached xl.meta and must never alias a caller's copy.
func Clone(m *XLMeta) *XLMeta {
	if m == nil {
		return nil
	}
	out := *m
	out.Erasure.Distribution = append([]uint32(nil), m.Erasure.Distribution...)
	out.Erasure.Checksums = append([]Checksum(nil), m.Erasure.Checksums...)
	if m.Meta.UserMeta != nil {
		out.Meta.UserMeta = make(map[string]string, len(m.Meta.UserMeta))
		for k, v := range m.Meta.UserMeta {
			out.Meta.UserMeta[k] = v
		}
	}
	if m.InlineData != nil {
		out.InlineData = append([]byte(nil), m.InlineData...)
	}
	if m.Unknown != nil {
		out.Unknown = make(map[string]interface{}, len(m.Unknown))
		for k, v := range m.Unknown {
			out.Unknown[k] = v
		}
	}
	return &out
}
