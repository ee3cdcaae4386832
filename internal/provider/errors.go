package provider

import "errors"

var (
	ErrVendorUnknown        = errors.New("unknown DNS provider")
	ErrDomainNameNotValid   = errors.New("domain name is not valid")
	ErrDomainIDMissing      = errors.New("domain ID is missing")
	ErrAccessKeyMissing     = errors.New("access key is missing")
	ErrFamilyNotSupported   = errors.New("address family not supported")
	ErrHTTPStatusNotValid   = errors.New("HTTP status is not valid")
	ErrAbuse                = errors.New("banned due to abuse")
	ErrAuth                 = errors.New("bad authentication")
	ErrBannedUserAgent      = errors.New("user agent is banned")
	ErrDNSServerSide        = errors.New("server side DNS error")
	ErrFeatureUnavailable   = errors.New("feature is not available to the user")
	ErrHostnameNotExists    = errors.New("hostname does not exist")
	ErrUnknownResponse      = errors.New("unknown response received")
	ErrUnsuccessfulResponse = errors.New("unsuccessful response")
	ErrUnmarshalResponse    = errors.New("cannot unmarshal update response")
	ErrRequestMarshal       = errors.New("cannot marshal request body")
)
