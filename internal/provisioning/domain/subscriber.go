package domain // provisioning/domain

import "strings"

// Subscriber is one line/extension inside a PBX domain, as returned by the
// remote platform. Read-only for the duration of a run; the extension
// uniquely identifies the subscriber within its domain.
type Subscriber struct {
	Extension    string `json:"extension"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	DisplayName  string `json:"display_name"`
	CallerIDName string `json:"callerid_name"`
	Email        string `json:"email"` // may be empty
	Domain       string `json:"domain"`
	ServiceCode  string `json:"service_code"` // empty for ordinary users, non-empty marks system/service extensions
}

// DeviceAddress is the SIP address-of-record for a subscriber's device,
// composed as <extension><suffix>@<domain>. It is derived, never stored.
type DeviceAddress struct {
	Extension string
	Suffix    string
	Domain    string
}

// User returns the user part of the address: <extension><suffix>.
func (a DeviceAddress) User() string {
	return a.Extension + a.Suffix
}

func (a DeviceAddress) String() string {
	return a.User() + "@" + a.Domain
}

// UserFromAddress parses the user part back out of a full address-of-record.
// Under normal construction it equals DeviceAddress.User(); the softphone
// import format is derived from the stored address, so the round trip is kept.
func UserFromAddress(address string) string {
	if i := strings.Index(address, "@"); i >= 0 {
		return address[:i]
	}
	return address
}
