package cartosql

import (
	"fmt"
	"net/url"
	"strings"
)

// SQLEndpoint resolves the SQL API url. An explicit base wins over the
// per-user hostname.
func SQLEndpoint(base, user string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		user = strings.TrimSpace(user)
		if user == "" {
			return "", fmt.Errorf("carto user or base url is required")
		}
		base = "https://" + user + ".carto.com"
	}
	return strings.TrimRight(base, "/") + "/api/v2/sql", nil
}

func BuildParams(sql string) url.Values {
	return BuildParamsFormat(sql, "GeoJSON")
}

func BuildParamsFormat(sql, format string) url.Values {
	if strings.TrimSpace(format) == "" {
		format = "GeoJSON"
	}
	params := url.Values{}
	params.Set("format", format)
	params.Set("q", sql)
	return params
}
