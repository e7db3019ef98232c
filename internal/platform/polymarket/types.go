package polymarket

import (
	"encoding/json"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// stringList unmarshals from a JSON array of strings or from a
// doubly-encoded string holding such an array. Gamma sends
// outcomePrices both ways, e.g. ["0.85","0.15"] and "[\"0.85\",\"0.15\"]".
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*l = direct
		return nil
	}
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	if encoded == "" {
		*l = nil
		return nil
	}
	var inner []string
	if err := json.Unmarshal([]byte(encoded), &inner); err == nil {
		*l = inner
		return nil
	}
	// Last resort for malformed payloads: strip brackets and quotes.
	trimmed := strings.Trim(encoded, "[]")
	var out []string
	for _, part := range strings.Split(trimmed, ",") {
		part = strings.TrimSpace(strings.Trim(strings.TrimSpace(part), `"`))
		if part != "" {
			out = append(out, part)
		}
	}
	*l = out
	return nil
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string     `json:"id"`
	ConditionID   string     `json:"conditionId"`
	Question      string     `json:"question"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Description   string     `json:"description"`
	Active        flexBool   `json:"active"`
	Closed        bool       `json:"closed"`
	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
	Volume        string     `json:"volume"`
	EndDate       string     `json:"endDate"`
	EndDateISO    string     `json:"end_date_iso"`
	Category      string     `json:"category"`
}

// APIEvent represents an event as returned by the Gamma API. An event
// groups one or more related markets.
type APIEvent struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Slug        string      `json:"slug"`
	Description string      `json:"description"`
	Active      flexBool    `json:"active"`
	Closed      bool        `json:"closed"`
	Markets     []APIMarket `json:"markets"`
}
