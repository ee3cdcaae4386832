package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type AuthScheme int

const (
	AuthNone AuthScheme = iota
	// AuthHeaderKey sends the access key in Vendor.AuthHeader.
	AuthHeaderKey
	// AuthBasic sends the access key as basic authorization credentials.
	AuthBasic
)

// Param is a query or JSON body parameter. Value may contain the
// placeholders {domain}, {id}, {key} and {ip}. NameIPv6, when set, replaces
// Name for IPv6 updates.
type Param struct {
	Name     string
	NameIPv6 string
	Value    string
}

func (p Param) name(ipv6 bool) string {
	if ipv6 && p.NameIPv6 != "" {
		return p.NameIPv6
	}
	return p.Name
}

// Vendor describes how one DNS provider expects its update request.
type Vendor struct {
	Name string
	// Scheme defaults to https.
	Scheme string
	Host   string
	// HostIPv6 replaces Host for IPv6 updates.
	HostIPv6 string
	// Method defaults to GET.
	Method string
	// Path may contain placeholders, see Param.
	Path       string
	Query      []Param
	Body       []Param
	Auth       AuthScheme
	AuthHeader string
	// Check inspects the body of a 2xx response. Nil accepts any body.
	Check func(body string) error
	// Needs lists the placeholders the vendor cannot work without.
	Needs []string
}

const (
	Dynu    = "dynu"
	FreeDNS = "freedns"
	DuckDNS = "duckdns"
	YDNS    = "ydns"
	NoIP    = "noip"
)

var vendors = map[string]Vendor{
	Dynu: {
		Name:       Dynu,
		Host:       "api.dynu.com",
		Method:     http.MethodPost,
		Path:       "/v2/dns/{id}",
		Body:       []Param{{Name: "name", Value: "{domain}"}, {Name: "ipv4Address", NameIPv6: "ipv6Address", Value: "{ip}"}},
		Auth:       AuthHeaderKey,
		AuthHeader: "API-Key",
		Check:      checkDynu,
		Needs:      []string{"{domain}", "{id}", "{key}"},
	},
	FreeDNS: {
		Name:     FreeDNS,
		Scheme:   "http",
		Host:     "sync.afraid.org",
		HostIPv6: "v6.sync.afraid.org",
		Path:     "/u/{key}/",
		Query:    []Param{{Name: "address", Value: "{ip}"}},
		Check:    checkFreeDNS,
		Needs:    []string{"{key}"},
	},
	DuckDNS: {
		Name: DuckDNS,
		Host: "www.duckdns.org",
		Path: "/update",
		Query: []Param{
			{Name: "domains", Value: "{id}"},
			{Name: "token", Value: "{key}"},
			{Name: "ip", NameIPv6: "ipv6", Value: "{ip}"},
		},
		Check: checkDuckDNS,
		Needs: []string{"{id}", "{key}"},
	},
	YDNS: {
		Name:  YDNS,
		Host:  "ydns.io",
		Path:  "/api/v1/update/",
		Query: []Param{{Name: "host", Value: "{domain}"}, {Name: "ip", Value: "{ip}"}},
		Auth:  AuthBasic,
		Check: checkYDNS,
		Needs: []string{"{domain}", "{key}"},
	},
	NoIP: {
		Name:  NoIP,
		Host:  "dynupdate.no-ip.com",
		Path:  "/nic/update",
		Query: []Param{{Name: "hostname", Value: "{domain}"}, {Name: "myip", NameIPv6: "myipv6", Value: "{ip}"}},
		Auth:  AuthBasic,
		Check: checkDynDNS2,
		Needs: []string{"{domain}", "{key}"},
	},
}

// Lookup returns the built-in vendor with the given name, ignoring case.
func Lookup(name string) (Vendor, error) {
	v, ok := vendors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Vendor{}, fmt.Errorf("%w: %q (supported: %s)",
			ErrVendorUnknown, name, strings.Join(Names(), ", "))
	}
	return v, nil
}

// Names returns the names of the built-in vendors, sorted.
func Names() []string {
	names := make([]string, 0, len(vendors))
	for name := range vendors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v Vendor) needs(placeholder string) bool {
	for _, n := range v.Needs {
		if n == placeholder {
			return true
		}
	}
	return false
}

func checkDynu(body string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	var response struct {
		StatusCode int    `json:"statusCode"`
		Type       string `json:"type"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalResponse, err)
	}
	if response.StatusCode != 0 && response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d: %s: %s", ErrUnsuccessfulResponse,
			response.StatusCode, response.Type, response.Message)
	}
	return nil
}

func checkFreeDNS(body string) error {
	s := strings.TrimSpace(body)
	if strings.HasPrefix(strings.ToUpper(s), "ERROR") {
		return fmt.Errorf("%w: %s", ErrUnsuccessfulResponse, toSingleLine(s))
	}
	return nil
}

func checkDuckDNS(body string) error {
	s := strings.TrimSpace(body)
	switch {
	case strings.HasPrefix(s, "OK"):
		return nil
	case strings.HasPrefix(s, "KO"):
		return fmt.Errorf("%w", ErrAuth)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownResponse, toSingleLine(s))
	}
}

func checkYDNS(body string) error {
	s := strings.ToLower(strings.TrimSpace(body))
	switch {
	case s == "", strings.HasPrefix(s, "ok"), strings.HasPrefix(s, "good"), strings.HasPrefix(s, "nochg"):
		return nil
	case strings.HasPrefix(s, "badauth"):
		return fmt.Errorf("%w", ErrAuth)
	case strings.HasPrefix(s, "nohost"):
		return fmt.Errorf("%w", ErrHostnameNotExists)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownResponse, toSingleLine(s))
	}
}

// checkDynDNS2 interprets the return codes of the dyndns2 update protocol.
func checkDynDNS2(body string) error {
	s := strings.TrimSpace(body)
	switch {
	case strings.HasPrefix(s, "good"), strings.HasPrefix(s, "nochg"):
		return nil
	case s == "badauth":
		return fmt.Errorf("%w", ErrAuth)
	case s == "nohost":
		return fmt.Errorf("%w", ErrHostnameNotExists)
	case s == "911":
		return fmt.Errorf("%w", ErrDNSServerSide)
	case s == "abuse":
		return fmt.Errorf("%w", ErrAbuse)
	case s == "!donator":
		return fmt.Errorf("%w", ErrFeatureUnavailable)
	case s == "badagent":
		return fmt.Errorf("%w", ErrBannedUserAgent)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownResponse, toSingleLine(s))
	}
}

func toSingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
