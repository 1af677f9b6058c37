package actor

import (
	"fmt"
	"sort"
)

// UnknownErrorCode is the numeric code of the reserved fallback entry
// used when a check failure cannot be classified.
const UnknownErrorCode = 9999

// ErrorData describes a classified failure mode of an actor.
type ErrorData struct {
	Code        int    `json:"code"`
	Critical    bool   `json:"critical"`
	Description string `json:"description"`
}

// Unknown returns the reserved fallback error entry.
func Unknown() ErrorData {
	return ErrorData{Code: UnknownErrorCode, Critical: true, Description: "Unknown error"}
}

// Catalog maps symbolic names to error entries, with a reverse index
// from numeric code. Catalogs are built once at startup and read-only
// afterwards.
type Catalog struct {
	byName map[string]ErrorData
	byCode map[int]ErrorData
}

// NewCatalog builds a catalog from a name-to-entry table. Numeric codes
// must be unique. The UNKNOWN fallback entry is injected if absent.
func NewCatalog(entries map[string]ErrorData) (*Catalog, error) {
	c := &Catalog{
		byName: make(map[string]ErrorData, len(entries)+1),
		byCode: make(map[int]ErrorData, len(entries)+1),
	}

	// Deterministic insertion order so duplicate-code errors are stable.
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data := entries[name]
		if _, dup := c.byCode[data.Code]; dup {
			return nil, fmt.Errorf("duplicate error code %d (%s)", data.Code, name)
		}
		c.byName[name] = data
		c.byCode[data.Code] = data
	}

	if _, ok := c.byName["UNKNOWN"]; !ok {
		unknown := Unknown()
		if _, dup := c.byCode[unknown.Code]; dup {
			return nil, fmt.Errorf("code %d is reserved for UNKNOWN", unknown.Code)
		}
		c.byName["UNKNOWN"] = unknown
		c.byCode[unknown.Code] = unknown
	}

	return c, nil
}

// MustCatalog is like NewCatalog but panics on error. Intended for
// package-level catalog definitions.
func MustCatalog(entries map[string]ErrorData) *Catalog {
	c, err := NewCatalog(entries)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the entry for a symbolic name.
func (c *Catalog) Get(name string) (ErrorData, bool) {
	data, ok := c.byName[name]
	return data, ok
}

// ByCode returns the entry matching a numeric code.
func (c *Catalog) ByCode(code int) (ErrorData, bool) {
	data, ok := c.byCode[code]
	return data, ok
}

// Unknown returns the catalog's fallback entry.
func (c *Catalog) Unknown() ErrorData {
	return c.byName["UNKNOWN"]
}

// CheckError is returned by a health check to signal a classified
// failure.
type CheckError struct {
	Data    ErrorData
	Message string
	Err     error
}

// NewCheckError builds a CheckError for a catalog entry.
func NewCheckError(data ErrorData, message string, cause error) *CheckError {
	return &CheckError{Data: data, Message: message, Err: cause}
}

func (e *CheckError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Data.Description
	}
	if e.Err != nil {
		return fmt.Sprintf("check failed (code %d): %s: %v", e.Data.Code, msg, e.Err)
	}
	return fmt.Sprintf("check failed (code %d): %s", e.Data.Code, msg)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}
