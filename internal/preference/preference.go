// Package preference parses the OData Prefer request header.
package preference

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// HeaderPrefer is the request header carrying preferences.
	HeaderPrefer = "Prefer"
	// HeaderPreferenceApplied is the response header listing honored preferences.
	HeaderPreferenceApplied = "Preference-Applied"

	maxPageSizeName = "odata.maxpagesize"
)

// Preference is the subset of Prefer the feed honors.
type Preference struct {
	MaxPageSize *int
}

// ParsePrefer reads every Prefer header of r. Unknown or malformed
// preferences are ignored.
func ParsePrefer(r *http.Request) *Preference {
	pref := &Preference{}
	for _, header := range r.Header.Values(HeaderPrefer) {
		for _, item := range strings.Split(header, ",") {
			name, value, found := strings.Cut(strings.TrimSpace(item), "=")
			if !found || !strings.EqualFold(strings.TrimSpace(name), maxPageSizeName) {
				continue
			}
			size, err := strconv.Atoi(strings.Trim(strings.TrimSpace(value), `"`))
			if err != nil || size <= 0 {
				continue
			}
			pref.MaxPageSize = &size
		}
	}
	return pref
}

// Applied returns the Preference-Applied value for the honored page size.
func (p *Preference) Applied() string {
	if p == nil || p.MaxPageSize == nil {
		return ""
	}
	return fmt.Sprintf("%s=%d", maxPageSizeName, *p.MaxPageSize)
}
