// Package browser wraps the headless-automation backend: a bounded pool of
// isolated browser contexts, a minimal Page surface the sessions drive, and
// the fallback locator resolver.
package browser

import "fmt"

// By selects the query strategy for a Descriptor.
type By string

const (
	ByCSS   By = "css"
	ByXPath By = "xpath"
)

// Descriptor is one provider-authored reference to a UI element. Portals
// are not script-stable, so fields are located through an ordered list of
// these rather than a single selector.
type Descriptor struct {
	Name  string `mapstructure:"name" yaml:"name,omitempty"`
	By    By     `mapstructure:"by" yaml:"by"`
	Value string `mapstructure:"value" yaml:"value"`
}

func (d Descriptor) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s(%s=%s)", d.Name, d.By, d.Value)
	}
	return fmt.Sprintf("%s=%s", d.By, d.Value)
}

// CSS is shorthand for a CSS descriptor.
func CSS(value string) Descriptor { return Descriptor{By: ByCSS, Value: value} }

// XPath is shorthand for an XPath descriptor.
func XPath(value string) Descriptor { return Descriptor{By: ByXPath, Value: value} }
