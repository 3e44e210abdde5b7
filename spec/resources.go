package spec

import (
	"fmt"

	"github.com/wikimedia/hyperswitch/message"
)

// RunResources issues every collected startup resource request through
// dispatch, an internal_startup-classed callback the caller supplies
// (typically the dispatcher's privileged startup child, bypassing the
// /sys protection per §5's "resource-phase requests run with the
// internal_startup class"). Each template is expanded against
// {request:{params:{domain:domain}}} before dispatch, matching the
// substitution the startup phase documents.
func RunResources(entries []ResourceEntry, domain string, dispatch func(*message.Request) (*message.Response, error)) error {
	tpls, err := Templates(entries)
	if err != nil {
		return err
	}
	model := map[string]any{"request": map[string]any{"params": map[string]any{"domain": domain}}}

	for i, tpl := range tpls {
		v, _ := tpl.Expand(model)
		reqMap, _ := v.(map[string]any)
		req := requestFromMap(reqMap)
		resp, err := dispatch(req)
		if err != nil {
			return fmt.Errorf("resource %q: %w", entries[i].NodePath, err)
		}
		if resp.IsError() {
			return fmt.Errorf("resource %q: server responded with status %d", entries[i].NodePath, resp.Status)
		}
	}
	return nil
}

func requestFromMap(m map[string]any) *message.Request {
	path, _ := m["uri"].(string)
	req := message.NewRequest(path)
	if method, ok := m["method"].(string); ok && method != "" {
		req.Method = method
	} else {
		req.Method = "put"
	}
	if body, ok := m["body"]; ok {
		req.Body = message.ObjectBody{Value: body}
	}
	if headers, ok := m["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Headers.Set(k, fmt.Sprint(v))
		}
	}
	return req
}
