package flatten

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-forms/internal/submission"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return submission.Truncate(t).Format(timestampLayout)
}

// Coerce converts a raw leaf value to its JSON representation for the given
// form type. Explicitly empty values become null; values that cannot be
// read as their declared type also become null.
func Coerce(raw any, formType string, wkt bool) any {
	text, ok := leafText(raw)
	if !ok {
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	switch formType {
	case "int":
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case "decimal":
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil
		}
		return json.Number(d.String())
	case "boolean":
		switch strings.ToLower(text) {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
		return nil
	case "geopoint":
		return geometry(geoPoint, text, wkt)
	case "geotrace":
		return geometry(geoTrace, text, wkt)
	case "geoshape":
		return geometry(geoShape, text, wkt)
	}
	return text
}

// leafText reads a leaf value as text. Values decoded from JSON may already
// be numbers or booleans.
func leafText(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}
