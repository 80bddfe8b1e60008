// Package driver defines the per-portal capability the automation session
// consumes: menu paths, field locator candidates, the 2FA flag and the
// result shape. Real portals are described declaratively in YAML profiles;
// the session only ever sees the Driver interface.
package driver

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"teklif/internal/browser"
	"teklif/internal/types"
)

// Duration is a time.Duration that decodes YAML scalars like "25s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// TimeoutSpec overrides per-state step budgets for one portal. Zero
// fields fall back to the session defaults; a slow portal only needs to
// name the states it actually exceeds.
type TimeoutSpec struct {
	Init         Duration `mapstructure:"init" yaml:"init,omitempty"`
	Authenticate Duration `mapstructure:"authenticate" yaml:"authenticate,omitempty"`
	ClearDialogs Duration `mapstructure:"clear_dialogs" yaml:"clear_dialogs,omitempty"`
	Navigate     Duration `mapstructure:"navigate" yaml:"navigate,omitempty"`
	FillForm     Duration `mapstructure:"fill_form" yaml:"fill_form,omitempty"`
	Submit       Duration `mapstructure:"submit" yaml:"submit,omitempty"`
	AwaitResult  Duration `mapstructure:"await_result" yaml:"await_result,omitempty"`
	Extract      Duration `mapstructure:"extract" yaml:"extract,omitempty"`
}

// Driver supplies everything provider-specific the state machine needs.
type Driver interface {
	Provider() types.ProviderID
	BaseURL() string
	RequiresTOTP() bool
	Login() LoginSpec
	// Timeouts returns the portal's per-state budget overrides; zero
	// fields mean "use the default".
	Timeouts() TimeoutSpec
	// TransientDialogs lists dismiss buttons for popups that may or may
	// not appear on any given run. Dismissal is always best-effort.
	TransientDialogs() []browser.Descriptor
	// Branch returns the quote flow for one insurance line, or false when
	// the portal does not serve it.
	Branch(b types.Branch) (BranchSpec, bool)
}

// LoginSpec locates the credential form and the indicators used to decide
// whether a persisted session is still authenticated.
type LoginSpec struct {
	UsernameField []browser.Descriptor `mapstructure:"username_field" yaml:"username_field"`
	PasswordField []browser.Descriptor `mapstructure:"password_field" yaml:"password_field"`
	SubmitButton  []browser.Descriptor `mapstructure:"submit_button" yaml:"submit_button"`
	TOTPField     []browser.Descriptor `mapstructure:"totp_field" yaml:"totp_field,omitempty"`
	TOTPSubmit    []browser.Descriptor `mapstructure:"totp_submit" yaml:"totp_submit,omitempty"`
	// AuthenticatedMarker appears only for a logged-in operator;
	// LoginMarker appears only on the credential form.
	AuthenticatedMarker []browser.Descriptor `mapstructure:"authenticated_marker" yaml:"authenticated_marker"`
	LoginMarker         []browser.Descriptor `mapstructure:"login_marker" yaml:"login_marker"`
}

// Field maps one canonical customer_data key onto its locator candidates.
type Field struct {
	Name       string               `mapstructure:"name" yaml:"name"`
	Source     string               `mapstructure:"source" yaml:"source"`
	Derive     string               `mapstructure:"derive" yaml:"derive,omitempty"`
	Optional   bool                 `mapstructure:"optional" yaml:"optional,omitempty"`
	Candidates []browser.Descriptor `mapstructure:"candidates" yaml:"candidates"`
}

// BranchSpec is the quote-entry flow for one insurance line on one portal.
type BranchSpec struct {
	// MenuPath is clicked in order; each step carries its own fallback
	// candidates.
	MenuPath [][]browser.Descriptor `mapstructure:"menu_path" yaml:"menu_path"`
	// EntryMarker identifies the quote-entry surface after navigation.
	EntryMarker []browser.Descriptor `mapstructure:"entry_marker" yaml:"entry_marker"`
	Fields      []Field              `mapstructure:"fields" yaml:"fields"`
	Submit      []browser.Descriptor `mapstructure:"submit" yaml:"submit"`
	// ConfirmDialog is an optional intermediate confirmation between
	// submit and results ("apply default upgrade?"); absence is not an
	// error.
	ConfirmDialog []browser.Descriptor `mapstructure:"confirm_dialog" yaml:"confirm_dialog,omitempty"`
	// ResultMarker signals the rendered price grid.
	ResultMarker []browser.Descriptor `mapstructure:"result_marker" yaml:"result_marker"`
	// ResultFields are read into the raw payload after the marker shows.
	ResultFields map[string][]browser.Descriptor `mapstructure:"result_fields" yaml:"result_fields"`
	Shape        ResultShape                     `mapstructure:"shape" yaml:"shape"`
	// AwaitTimeout bounds the wait for ResultMarker; portals take 10-25s
	// to price a quote.
	AwaitTimeout Duration `mapstructure:"await_timeout" yaml:"await_timeout,omitempty"`
}

// ResultShape tells the normalizer where price and quote number live in
// the provider-shaped raw payload. Paths are gjson expressions.
type ResultShape struct {
	PricePath       string `mapstructure:"price_path" yaml:"price_path"`
	QuoteNumberPath string `mapstructure:"quote_number_path" yaml:"quote_number_path,omitempty"`
	Currency        string `mapstructure:"currency" yaml:"currency,omitempty"`
}
