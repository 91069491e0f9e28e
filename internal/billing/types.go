package billing

import (
	"bytes"
	"encoding/json"
)

// ExpandableID is an object reference that the API renders either as a bare
// id string or, when expanded, as an object with an "id" field.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

func (e ExpandableID) String() string { return string(e) }

type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Deleted  bool              `json:"deleted"`
	Metadata map[string]string `json:"metadata"`
}

type CustomerParams struct {
	Email    string
	Metadata map[string]string
}

type Product struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Active       bool         `json:"active"`
	DefaultPrice ExpandableID `json:"default_price"`
}

type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type CheckoutSession struct {
	ID       string            `json:"id"`
	URL      string            `json:"url"`
	Customer ExpandableID      `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

type Subscription struct {
	ID                string       `json:"id"`
	Customer          ExpandableID `json:"customer"`
	Status            string       `json:"status"`
	CancelAtPeriodEnd bool         `json:"cancel_at_period_end"`
	CancelAt          *int64       `json:"cancel_at"`
	CurrentPeriodEnd  int64        `json:"current_period_end"`
}
