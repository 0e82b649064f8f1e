package signal

import "encoding/json"

// marshalWithStatus serializes the immutable signal fields plus the current
// status under a single "status" key.
func marshalWithStatus(v any, status Status) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	st, err := json.Marshal(status)
	if err != nil {
		return nil, err
	}
	m["status"] = st
	return json.Marshal(m)
}
