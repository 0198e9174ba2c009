package spoke

// Params is the sparse parameter map an action is invoked with.
type Params map[string]any

// Result is what every handler invocation returns. A failed Result carries no data.
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func OK(data any, meta map[string]any) Result {
	return Result{Success: true, Data: data, Metadata: meta}
}

// Fail converts err into a failed Result tagged with its error kind.
func Fail(err error) Result {
	if err == nil {
		err = errUnknown
	}
	return Failf(err, nil)
}

// Failf is Fail with extra metadata (e.g. status_code).
func Failf(err error, meta map[string]any) Result {
	if err == nil {
		err = errUnknown
	}
	m := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		m[k] = v
	}
	m["error_kind"] = Kind(err)
	if sc := StatusCode(err); sc != 0 {
		if _, ok := m["status_code"]; !ok {
			m["status_code"] = sc
		}
	}
	msg := err.Error()
	if msg == "" {
		msg = errUnknown.Error()
	}
	return Result{Success: false, Error: msg, Metadata: m}
}
