package report

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// grafanaExploreURL builds the LogQL explore URL:
// {grafana_url}/explore?left={URL-encoded JSON array}, where the array is
// ["now-{range}","now","{datasource}",{"expr":"{…labels…}"},{"ui":[true,true,true,"exact"]}].
//
// No library in the example pack talks to Grafana's Explore API; this is
// the one place the report stays on net/url rather than a third-party
// client.
func grafanaExploreURL(opts Options, labels map[string]string) string {
	if opts.GrafanaURL == "" {
		return ""
	}

	left := []interface{}{
		"now-" + opts.GrafanaTimeRange,
		"now",
		opts.GrafanaDatasource,
		map[string]string{"expr": logQLSelector(labels)},
		map[string]interface{}{"ui": []interface{}{true, true, true, "exact"}},
	}

	encoded, err := json.Marshal(left)
	if err != nil {
		return ""
	}

	q := url.Values{}
	q.Set("left", string(encoded))

	return fmt.Sprintf("%s/explore?%s", strings.TrimRight(opts.GrafanaURL, "/"), q.Encode())
}

// logQLSelector renders {k="v", k="v"} with keys in a stable order.
func logQLSelector(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s=%q`, k, labels[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
