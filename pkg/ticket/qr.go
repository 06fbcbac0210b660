// Package ticket renders the redemption payload and the printable document of a booking.
package ticket

import (
	"errors"
	"fmt"
	"strings"
)

// PayloadTag prefixes every redemption payload we issue
const PayloadTag = "INZIRA_TICKET"

// ErrInvalidPayload is returned for payloads we did not issue or cannot read
var ErrInvalidPayload = errors.New("invalid ticket payload")

// Payload is the content encoded in a ticket's QR code
type Payload struct {
	Reference string
	Email     string
	Route     string
	Date      string
}

// String renders "INZIRA_TICKET|REF:<ref>|EMAIL:<email>|ROUTE:<route>|DATE:<date>".
// Field values must not contain '|'; it is replaced with '/'.
func (p Payload) String() string {
	return fmt.Sprintf("%s|REF:%s|EMAIL:%s|ROUTE:%s|DATE:%s",
		PayloadTag, clean(p.Reference), clean(p.Email), clean(p.Route), clean(p.Date))
}

// ParsePayload decodes a scanned payload. Only REF is required.
func ParsePayload(data string) (*Payload, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, PayloadTag+"|") {
		return nil, ErrInvalidPayload
	}

	p := &Payload{}
	for _, part := range strings.Split(data, "|")[1:] {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		switch key {
		case "REF":
			p.Reference = strings.TrimSpace(value)
		case "EMAIL":
			p.Email = value
		case "ROUTE":
			p.Route = value
		case "DATE":
			p.Date = value
		}
	}

	if p.Reference == "" {
		return nil, ErrInvalidPayload
	}
	return p, nil
}

func clean(s string) string {
	return strings.ReplaceAll(s, "|", "/")
}
