package metrics

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"pktharness/internal/poll"
)

// LoadSchema reads and compiles the schema at path.
func LoadSchema(path string) (*jsonschema.Schema, error) {
	sch, err := jsonschema.NewCompiler().Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}
	return sch, nil
}

// Validate reports whether payload is JSON conforming to the schema at
// schemaPath. The schema is loaded on every call. Failures are logged with
// the validator's diagnostic.
func Validate(payload []byte, schemaPath string) bool {
	ok, detail := ValidateDetail(payload, schemaPath)
	if !ok {
		slog.Warn("Schema validation failed.", "schema", schemaPath, "detail", detail)
	}
	return ok
}

// ValidateDetail is Validate returning the diagnostic instead of logging it.
func ValidateDetail(payload []byte, schemaPath string) (bool, string) {
	sch, err := LoadSchema(schemaPath)
	if err != nil {
		return false, err.Error()
	}
	return check(sch, payload)
}

func check(sch *jsonschema.Schema, payload []byte) (bool, string) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Sprintf("decode payload: %v", err)
	}
	if err := sch.Validate(inst); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Result is the outcome of checking one endpoint.
type Result struct {
	Endpoint string
	Status   int
	Valid    bool
	Detail   string
	Attempts int
}

// OK reports whether the endpoint answered 200 with a conforming body.
func (r Result) OK() bool {
	return r.Status == http.StatusOK && r.Valid
}

// FetchValid polls endpoint until it answers 200 with a body conforming to
// the schema at schemaPath, sharing one timeout between both conditions.
func (c *Client) FetchValid(ctx context.Context, endpoint string, port int, schemaPath string, timeout time.Duration) (Result, error) {
	sch, err := LoadSchema(schemaPath)
	if err != nil {
		return Result{Endpoint: endpoint}, err
	}
	url := c.URL(endpoint, port)

	probe := poll.WithPolicy(poll.RetryOnMismatch, nil, func(ctx context.Context) (Result, bool, error) {
		r := Result{Endpoint: endpoint}
		resp, err := c.do(ctx, http.MethodGet, url)
		if err != nil {
			if ctx.Err() != nil {
				return r, false, ctx.Err()
			}
			r.Detail = err.Error()
			return r, false, nil
		}
		r.Status = resp.Status
		if resp.Status != http.StatusOK {
			r.Detail = fmt.Sprintf("status %d", resp.Status)
			return r, false, nil
		}
		r.Valid, r.Detail = check(sch, resp.Body)
		return r, r.Valid, nil
	})

	out, err := poll.Until(ctx, poll.Options{Wait: c.wait, Timeout: timeout, Clock: c.clock}, Result{Endpoint: endpoint}, probe)
	out.Value.Attempts = out.Attempts
	if err != nil {
		return out.Value, fmt.Errorf("fetch %s: %w", url, err)
	}
	if !out.Succeeded {
		slog.Warn("Endpoint did not produce valid metrics.", "endpoint", endpoint, "port", port,
			"status", out.Value.Status, "detail", out.Value.Detail, "attempts", out.Attempts)
	}
	return out.Value, nil
}

// CheckEndpoints runs FetchValid for every endpoint, each with its own
// timeout. ok is true when every endpoint passed.
func (c *Client) CheckEndpoints(ctx context.Context, endpoints []string, port int, schemaPath string, timeout time.Duration) (results []Result, ok bool, err error) {
	ok = true
	for _, ep := range endpoints {
		r, err := c.FetchValid(ctx, ep, port, schemaPath, timeout)
		if err != nil {
			return results, false, err
		}
		results = append(results, r)
		ok = ok && r.OK()
	}
	return results, ok, nil
}
