// Package registry holds the fixed catalog of calendar operations and their
// argument schemas. The same descriptors are rendered into the reasoner
// prompt, exposed as MCP tools and used to validate every operation request,
// so the three uses cannot drift apart.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Operation names.
const (
	CheckAvailability = "check_availability"
	Book              = "book"
	Delete            = "delete"
	Move              = "move"
	ViewDay           = "view_day"
	ViewWeek          = "view_week"
)

// DefaultTitle is used when book is called without a title.
const DefaultTitle = "Meeting"

// maxArgLen bounds a single argument value.
const maxArgLen = 200

// ArgType is the declared type of an operation argument.
type ArgType string

const (
	TypeDate ArgType = "date"
	TypeTime ArgType = "time"
	TypeText ArgType = "text"
)

// Argument describes one named argument of an operation.
type Argument struct {
	Name        string  `json:"name"`
	Type        ArgType `json:"type"`
	Required    bool    `json:"required"`
	Default     string  `json:"default,omitempty"`
	Description string  `json:"description"`
}

// Descriptor describes one invocable operation.
type Descriptor struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Arguments   []Argument `json:"arguments"`
}

// ErrSchema is matched by every *SchemaError.
var ErrSchema = errors.New("schema error")

// SchemaError reports why an operation request was rejected.
type SchemaError struct {
	Operation string
	Argument  string
	Reason    string
}

func (e *SchemaError) Error() string {
	if e.Argument == "" {
		return fmt.Sprintf("%s: %s: %s", ErrSchema, e.Operation, e.Reason)
	}
	return fmt.Sprintf("%s: %s.%s: %s", ErrSchema, e.Operation, e.Argument, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// Call is a validated operation request. Arguments are still raw text; date
// and time values are normalized by the caller.
type Call struct {
	Operation string
	Args      map[string]string
}

// Arg returns the value of a validated argument.
func (c Call) Arg(name string) string { return c.Args[name] }

var (
	dateArg = func(desc string) Argument {
		return Argument{Name: "date", Type: TypeDate, Required: true, Description: desc}
	}
	timeArg = func(name, desc string) Argument {
		return Argument{Name: name, Type: TypeTime, Required: true, Description: desc}
	}
)

var descriptors = []Descriptor{
	{
		Name:        CheckAvailability,
		Description: "List the free slots on a date.",
		Arguments:   []Argument{dateArg("Date to check, e.g. 2024-06-10 or 'tomorrow'.")},
	},
	{
		Name:        Book,
		Description: "Book a meeting in a free slot. Fails if the slot is taken.",
		Arguments: []Argument{
			dateArg("Date of the meeting."),
			timeArg("time", "Slot time, e.g. '2:00 PM'."),
			{Name: "title", Type: TypeText, Default: DefaultTitle, Description: "Meeting title."},
		},
	},
	{
		Name:        Delete,
		Description: "Delete the meeting at an exact slot.",
		Arguments: []Argument{
			dateArg("Date of the meeting."),
			timeArg("time", "Slot time of the meeting."),
		},
	},
	{
		Name:        Move,
		Description: "Move a meeting to another slot on the same date. Fails if the destination is taken.",
		Arguments: []Argument{
			dateArg("Date of the meeting."),
			timeArg("old_time", "Current slot time."),
			timeArg("new_time", "Destination slot time."),
		},
	},
	{
		Name:        ViewDay,
		Description: "List the meetings on a date in time order.",
		Arguments:   []Argument{dateArg("Date to show.")},
	},
	{
		Name:        ViewWeek,
		Description: "List the meetings of the Monday-started week containing a date.",
		Arguments:   []Argument{dateArg("Any date within the week.")},
	},
}

// hasDigitOrWord filters out date/time values that cannot possibly resolve,
// such as punctuation-only strings.
var hasDigitOrWord = regexp.MustCompile(`[0-9A-Za-z]`)

// Registry is the immutable operation catalog.
type Registry struct {
	byName map[string]Descriptor
}

// New builds the registry of the six calendar operations.
func New() *Registry {
	r := &Registry{byName: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		r.byName[d.Name] = d
	}
	return r
}

// List returns the descriptors in declaration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	for i, d := range descriptors {
		d.Arguments = append([]Argument(nil), d.Arguments...)
		out[i] = d
	}
	return out
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Validate checks a raw operation request against its descriptor and fills
// in argument defaults.
func (r *Registry) Validate(name string, args map[string]string) (Call, error) {
	d, ok := r.byName[name]
	if !ok {
		return Call{}, &SchemaError{Operation: name, Reason: "unknown operation"}
	}

	known := make(map[string]bool, len(d.Arguments))
	for _, a := range d.Arguments {
		known[a.Name] = true
	}
	var unknown []string
	for k := range args {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Call{}, &SchemaError{Operation: name, Argument: unknown[0], Reason: "unknown argument"}
	}

	out := make(map[string]string, len(d.Arguments))
	for _, a := range d.Arguments {
		v, present := args[a.Name]
		if !present {
			if a.Required {
				return Call{}, &SchemaError{Operation: name, Argument: a.Name, Reason: "missing required argument"}
			}
			if a.Default != "" {
				out[a.Name] = a.Default
			}
			continue
		}
		if err := checkValue(a, v); err != "" {
			return Call{}, &SchemaError{Operation: name, Argument: a.Name, Reason: err}
		}
		out[a.Name] = strings.TrimSpace(v)
	}
	return Call{Operation: name, Args: out}, nil
}

func checkValue(a Argument, v string) string {
	if !utf8.ValidString(v) {
		return "not valid UTF-8"
	}
	if len(v) > maxArgLen {
		return fmt.Sprintf("longer than %d bytes", maxArgLen)
	}
	if strings.TrimSpace(v) == "" {
		return "must not be empty"
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return "contains control characters"
		}
	}
	switch a.Type {
	case TypeDate, TypeTime:
		if !hasDigitOrWord.MatchString(v) {
			return fmt.Sprintf("not a plausible %s", a.Type)
		}
	}
	return ""
}

// Describe renders the catalog as plain text for a reasoner prompt.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, d := range descriptors {
		fmt.Fprintf(&b, "- %s(", d.Name)
		for i, a := range d.Arguments {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.Name)
			if !a.Required {
				b.WriteString("?")
			}
			fmt.Fprintf(&b, ": %s", a.Type)
		}
		fmt.Fprintf(&b, "): %s\n", d.Description)
	}
	return b.String()
}
