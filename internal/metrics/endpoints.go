package metrics

import "fmt"

// AllPolicies is the aggregate policy every agent exposes.
const AllPolicies = "__all"

// PoliciesEndpoint lists the running policies.
const PoliciesEndpoint = "policies"

// PrometheusEndpoint returns the Prometheus exposition of the aggregate policy.
const PrometheusEndpoint = "policies/" + AllPolicies + "/metrics/prometheus"

// BucketEndpoint returns the endpoint of metrics bucket n of policy.
func BucketEndpoint(policy string, n int) string {
	return fmt.Sprintf("policies/%s/metrics/bucket/%d", policy, n)
}

// WindowEndpoint returns the endpoint of the n-bucket window of policy.
func WindowEndpoint(policy string, n int) string {
	return fmt.Sprintf("policies/%s/metrics/window/%d", policy, n)
}

// PolicyWindowEndpoints returns the window endpoints (2 to 5 buckets) of policy.
func PolicyWindowEndpoints(policy string) []string {
	out := make([]string, 0, 4)
	for n := 2; n <= 5; n++ {
		out = append(out, WindowEndpoint(policy, n))
	}
	return out
}

// BaseEndpoints returns the JSON endpoints every agent serves: the policy
// list, the current bucket and the windows of the aggregate policy. The
// Prometheus endpoint is not JSON and is checked separately.
func BaseEndpoints() []string {
	out := []string{PoliciesEndpoint, BucketEndpoint(AllPolicies, 0)}
	return append(out, PolicyWindowEndpoints(AllPolicies)...)
}
