package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"whenmet/internal/device"
	"whenmet/internal/ledger"
)

// Scenario defines a conformance test scenario: an optional once-only import
// mode choice, a sequence of steps driven through the engine, and assertions
// on the final reconciled state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mode is the import mode chosen right after bootstrap. Empty leaves the
	// mode unset.
	Mode string `yaml:"mode,omitempty"`

	// Steps is the main flow. Each step performs exactly one action and the
	// engine is drained to idle before the next.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state after all steps ran.
	Assertions []Assertion `yaml:"assertions"`
}

// Step performs one action. Exactly one field must be set.
type Step struct {
	// Directory replaces the directory contents and fires the
	// directory-changed signal.
	Directory []device.Contact `yaml:"directory,omitempty"`

	// Advance moves the deterministic clock forward by a Go duration.
	Advance string `yaml:"advance,omitempty"`

	// Fix grants location permission and pins the locator to a coordinate.
	Fix *FixStep `yaml:"fix,omitempty"`

	// FixError grants location permission but makes every fix fail.
	FixError bool `yaml:"fix_error,omitempty"`

	// Capture applies an authoritative contact-added capture.
	Capture *CaptureStep `yaml:"capture,omitempty"`

	// Refresh triggers a manual refetch.
	Refresh bool `yaml:"refresh,omitempty"`

	// Tag adds a tag; Untag removes one.
	Tag   *TagStep `yaml:"tag,omitempty"`
	Untag *TagStep `yaml:"untag,omitempty"`

	// Search sets the projection search text. A pointer so that an explicit
	// empty string is a valid step that clears the filter.
	Search *string `yaml:"search,omitempty"`

	// Mode chooses the import mode mid-scenario.
	Mode string `yaml:"mode,omitempty"`
}

// FixStep is the locator coordinate for subsequent pin captures.
type FixStep struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

// CaptureStep is an authoritative contact-added capture. At is the capture
// instant in epoch milliseconds; zero means "now".
type CaptureStep struct {
	ID  string  `yaml:"id"`
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
	At  int64   `yaml:"at,omitempty"`
}

// TagStep names a contact and a tag.
type TagStep struct {
	ID  string `yaml:"id"`
	Tag string `yaml:"tag"`
}

// kind returns the step's action name, or an error when the step does not
// set exactly one field.
func (s *Step) kind() (string, error) {
	var kinds []string
	if s.Directory != nil {
		kinds = append(kinds, "directory")
	}
	if s.Advance != "" {
		kinds = append(kinds, "advance")
	}
	if s.Fix != nil {
		kinds = append(kinds, "fix")
	}
	if s.FixError {
		kinds = append(kinds, "fix_error")
	}
	if s.Capture != nil {
		kinds = append(kinds, "capture")
	}
	if s.Refresh {
		kinds = append(kinds, "refresh")
	}
	if s.Tag != nil {
		kinds = append(kinds, "tag")
	}
	if s.Untag != nil {
		kinds = append(kinds, "untag")
	}
	if s.Search != nil {
		kinds = append(kinds, "search")
	}
	if s.Mode != "" {
		kinds = append(kinds, "mode")
	}

	if len(kinds) != 1 {
		return "", fmt.Errorf("step must set exactly one action, got %v", kinds)
	}
	return kinds[0], nil
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// IDs is used by visible, pinned, and pinless.
	IDs []string `yaml:"ids,omitempty"`

	// ID and Tags are used by the tags assertion.
	ID   string   `yaml:"id,omitempty"`
	Tags []string `yaml:"tags,omitempty"`

	// Mode is the expected import mode for the mode assertion.
	Mode string `yaml:"mode,omitempty"`
}

// Assertion type constants.
const (
	// AssertVisible checks the visible list equals IDs exactly, in order.
	AssertVisible = "visible"
	// AssertPinned checks every listed contact has a pin.
	AssertPinned = "pinned"
	// AssertPinless checks none of the listed contacts has a pin.
	AssertPinless = "pinless"
	// AssertTags checks a contact's tag set.
	AssertTags = "tags"
	// AssertMode checks the chosen import mode.
	AssertMode = "mode"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so a typo cannot silently skip a step or assertion.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Mode != "" && !ledger.Mode(s.Mode).Valid() {
		return fmt.Errorf("invalid mode %q", s.Mode)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		kind, err := step.kind()
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		switch kind {
		case "advance":
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return fmt.Errorf("steps[%d]: bad advance duration: %w", i, err)
			}
		case "capture":
			if step.Capture.ID == "" {
				return fmt.Errorf("steps[%d]: capture id is required", i)
			}
		case "tag":
			if step.Tag.ID == "" || step.Tag.Tag == "" {
				return fmt.Errorf("steps[%d]: tag id and tag are required", i)
			}
		case "untag":
			if step.Untag.ID == "" || step.Untag.Tag == "" {
				return fmt.Errorf("steps[%d]: untag id and tag are required", i)
			}
		case "mode":
			if !ledger.Mode(step.Mode).Valid() {
				return fmt.Errorf("steps[%d]: invalid mode %q", i, step.Mode)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertVisible:
		// An empty IDs list is a valid expectation: nothing visible.
	case AssertPinned, AssertPinless:
		if len(a.IDs) == 0 {
			return fmt.Errorf("assertions[%d]: ids list is required for %s", index, a.Type)
		}
	case AssertTags:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for tags", index)
		}
	case AssertMode:
		if a.Mode == "" {
			return fmt.Errorf("assertions[%d]: mode is required for mode", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
