// Package fault normalizes errors into the (code, message, domain) triple the bridge settles with.
//
// Two families exist. Bridge-local errors are raised without reaching the native SDK and carry a
// fixed textual code in DomainBridge. Native errors carry the SDK's integer code and domain.
package fault

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/towerbridge/sdk"
)

// Domains
const (
	DomainBridge  = "sdk.bridge"
	DomainSDK     = "sdk"
	DomainUnknown = "unknown.domain"
)

// Bridge-local codes
const (
	CodeUnknown               = "unknown_error"
	CodeAlreadyInDiscovery    = "already_in_discovery"
	CodeDiscoveryTimeout      = "discovery_timeout"
	CodeInvalidTowerID        = "invalid_tower_id"
	CodeMalformedHex          = "malformed_hex"
	CodeSessionRequestPending = "session_request_pending"
	CodeCommandTimeout        = "command_timeout"
	CodeInvalidArgument       = "invalid_argument"
	CodeNotInitialized        = "not_initialized"
	CodeUnknownMethod         = "unknown_method"
)

type bridgeCode struct {
	number      int
	description string
}

// bridgeCodes maps each bridge-local code to its numeric code and default description
var bridgeCodes = map[string]bridgeCode{
	CodeUnknown:               {0, "Unknown error"},
	CodeAlreadyInDiscovery:    {1, "Already discovering towers to connect"},
	CodeDiscoveryTimeout:      {2, "Discovery timeout, tower not found"},
	CodeInvalidTowerID:        {3, "Invalid tower id"},
	CodeMalformedHex:          {4, "Payload must be an even-length hexadecimal string"},
	CodeSessionRequestPending: {5, "A session request is already pending"},
	CodeCommandTimeout:        {6, "Tower did not answer the command in time"},
	CodeInvalidArgument:       {7, "Invalid argument"},
	CodeNotInitialized:        {8, "SDK not initialized"},
	CodeUnknownMethod:         {9, "Unknown method"},
}

// Error is a normalized failure
type Error struct {
	Code    string `json:"code"`   // textual code: bridge-local key or decimal native code
	Number  int    `json:"number"` // integer code
	Message string `json:"message"`
	Domain  string `json:"domain"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s/%d]: %s", e.Domain, e.Code, e.Number, e.Message)
}

// Bridge builds a bridge-local error. An empty message uses the code's default description.
func Bridge(code, message string) *Error {
	bc, ok := bridgeCodes[code]
	if !ok {
		code, bc = CodeUnknown, bridgeCodes[CodeUnknown]
	}
	if message == "" {
		message = bc.description
	}
	return &Error{Code: code, Number: bc.number, Message: message, Domain: DomainBridge}
}

// Bridgef builds a bridge-local error with a formatted message
func Bridgef(code, format string, args ...interface{}) *Error {
	return Bridge(code, fmt.Sprintf(format, args...))
}

// Native builds an error from a native (code, message, domain) triple
func Native(code int, message, domain string) *Error {
	if domain == "" {
		domain = DomainSDK
	}
	return &Error{Code: strconv.Itoa(code), Number: code, Message: message, Domain: domain}
}

// FromNative translates a native error object. nil stays nil.
func FromNative(e *sdk.Error) *Error {
	if e == nil {
		return nil
	}
	return Native(e.Code, e.Message, e.Domain)
}

// AlreadyDiscovering is raised when a discovery-to-connect is already active
func AlreadyDiscovering() *Error { return Bridge(CodeAlreadyInDiscovery, "") }

// DiscoveryTimeout is raised when the target tower was not discovered in time
func DiscoveryTimeout() *Error { return Bridge(CodeDiscoveryTimeout, "") }

// CommandTimeout is raised when a queued command got no native answer in time
func CommandTimeout() *Error { return Bridge(CodeCommandTimeout, "") }

// InvalidTowerID is raised for malformed identifiers
func InvalidTowerID() *Error {
	return Bridge(CodeInvalidTowerID, "Tower Id should be an String with 16 hexadecimal characters")
}

// Parse extracts a normalized error from anything a caller might hold: a *Error, a native
// *sdk.Error, a map shaped like {code, message|description, domain} (optionally nested under
// "userInfo"), or any other error.
func Parse(v interface{}) *Error {
	switch e := v.(type) {
	case nil:
		return Bridge(CodeUnknown, "")
	case *Error:
		return e
	case *sdk.Error:
		return FromNative(e)
	case map[string]interface{}:
		return parseMap(e)
	case error:
		var fe *Error
		if errors.As(e, &fe) {
			return fe
		}
		var ne *sdk.Error
		if errors.As(e, &ne) {
			return FromNative(ne)
		}
		return &Error{Code: CodeUnknown, Message: e.Error(), Domain: DomainUnknown}
	default:
		return Bridge(CodeUnknown, "")
	}
}

func parseMap(m map[string]interface{}) *Error {
	info, _ := m["userInfo"].(map[string]interface{})
	lookup := func(keys ...string) interface{} {
		for _, src := range []map[string]interface{}{info, m} {
			for _, k := range keys {
				if v, ok := src[k]; ok && v != nil && v != "" {
					return v
				}
			}
		}
		return nil
	}

	out := &Error{Code: CodeUnknown, Message: "Unknown error", Domain: DomainUnknown}
	switch c := lookup("code").(type) {
	case string:
		out.Code = c
		if n, err := strconv.Atoi(c); err == nil {
			out.Number = n
		} else if bc, ok := bridgeCodes[c]; ok {
			out.Number = bc.number
		}
	case float64:
		out.Number = int(c)
		out.Code = strconv.Itoa(int(c))
	case int:
		out.Number = c
		out.Code = strconv.Itoa(c)
	}
	if msg, ok := lookup("description", "NSLocalizedDescription", "message").(string); ok {
		out.Message = msg
	}
	if domain, ok := lookup("domain").(string); ok {
		out.Domain = domain
	}
	return out
}

// Category names matched against domain segments
const (
	CategorySDK           = "sdk"
	CategoryAPI           = "api"
	CategoryFirmware      = "firmware"
	CategoryAuth          = "auth"
	CategoryPermissions   = "permissions"
	CategoryCommunication = "communication"
	CategorySession       = "session"
	CategoryHTTP          = "http"
	CategoryCancelled     = "cancelled"
	CategoryBluetooth     = "bluetooth"
	CategoryNetwork       = "network"
	CategoryBridge        = "bridge"
)

// Categories lists every category in a stable order
var Categories = []string{
	CategorySDK, CategoryAPI, CategoryFirmware, CategoryAuth, CategoryPermissions,
	CategoryCommunication, CategorySession, CategoryHTTP, CategoryCancelled,
	CategoryBluetooth, CategoryNetwork, CategoryBridge,
}

// Is reports whether e belongs to category. Domains are dot-separated ("sdk.bluetooth");
// a category matches when it equals one of the segments. Matching is advisory: an error can
// belong to several categories or none.
func Is(e *Error, category string) bool {
	if e == nil {
		return false
	}
	for _, seg := range strings.Split(strings.ToLower(e.Domain), ".") {
		if seg == category {
			return true
		}
	}
	return false
}

// MatchingCategories returns every category e belongs to
func MatchingCategories(e *Error) []string {
	var out []string
	for _, c := range Categories {
		if Is(e, c) {
			out = append(out, c)
		}
	}
	return out
}

func IsSDK(e *Error) bool           { return Is(e, CategorySDK) }
func IsAPI(e *Error) bool           { return Is(e, CategoryAPI) }
func IsFirmware(e *Error) bool      { return Is(e, CategoryFirmware) }
func IsAuth(e *Error) bool          { return Is(e, CategoryAuth) }
func IsPermissions(e *Error) bool   { return Is(e, CategoryPermissions) }
func IsCommunication(e *Error) bool { return Is(e, CategoryCommunication) }
func IsSession(e *Error) bool       { return Is(e, CategorySession) }
func IsHTTP(e *Error) bool          { return Is(e, CategoryHTTP) }
func IsCancelled(e *Error) bool     { return Is(e, CategoryCancelled) }
func IsBluetooth(e *Error) bool     { return Is(e, CategoryBluetooth) }
func IsNetwork(e *Error) bool       { return Is(e, CategoryNetwork) }
func IsBridge(e *Error) bool        { return Is(e, CategoryBridge) }
