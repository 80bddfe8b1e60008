package driver

import (
	"fmt"
	"strings"

	"teklif/internal/browser"
	"teklif/internal/types"
)

// Profile is the YAML document describing one portal. It implements
// Driver directly.
type Profile struct {
	ID       string                `mapstructure:"id" yaml:"id"`
	URL      string                `mapstructure:"base_url" yaml:"base_url"`
	TOTP     bool                  `mapstructure:"requires_totp" yaml:"requires_totp"`
	Auth     LoginSpec             `mapstructure:"login" yaml:"login"`
	Dialogs  []browser.Descriptor  `mapstructure:"transient_dialogs" yaml:"transient_dialogs,omitempty"`
	Budgets  TimeoutSpec           `mapstructure:"timeouts" yaml:"timeouts,omitempty"`
	Branches map[string]BranchSpec `mapstructure:"branches" yaml:"branches"`
}

func (p *Profile) Provider() types.ProviderID { return types.ProviderID(p.ID) }
func (p *Profile) BaseURL() string            { return p.URL }
func (p *Profile) RequiresTOTP() bool         { return p.TOTP }
func (p *Profile) Login() LoginSpec           { return p.Auth }
func (p *Profile) Timeouts() TimeoutSpec      { return p.Budgets }

func (p *Profile) TransientDialogs() []browser.Descriptor { return p.Dialogs }

func (p *Profile) Branch(b types.Branch) (BranchSpec, bool) {
	for name, spec := range p.Branches {
		if strings.EqualFold(name, string(b)) {
			return spec, true
		}
	}
	return BranchSpec{}, false
}

// Validate rejects profiles that cannot possibly drive a portal.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("profile id is required")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("profile %s: base_url is required", p.ID)
	}
	if len(p.Auth.UsernameField) == 0 || len(p.Auth.PasswordField) == 0 || len(p.Auth.SubmitButton) == 0 {
		return fmt.Errorf("profile %s: login needs username_field, password_field and submit_button", p.ID)
	}
	if len(p.Auth.AuthenticatedMarker) == 0 {
		return fmt.Errorf("profile %s: login needs an authenticated_marker", p.ID)
	}
	if p.TOTP && len(p.Auth.TOTPField) == 0 {
		return fmt.Errorf("profile %s: requires_totp set but no totp_field", p.ID)
	}
	if len(p.Branches) == 0 {
		return fmt.Errorf("profile %s: at least one branch is required", p.ID)
	}
	for name, spec := range p.Branches {
		if _, err := types.ParseBranch(name); err != nil {
			return fmt.Errorf("profile %s: %w", p.ID, err)
		}
		if len(spec.EntryMarker) == 0 {
			return fmt.Errorf("profile %s/%s: entry_marker is required", p.ID, name)
		}
		if len(spec.Submit) == 0 {
			return fmt.Errorf("profile %s/%s: submit is required", p.ID, name)
		}
		if len(spec.ResultMarker) == 0 {
			return fmt.Errorf("profile %s/%s: result_marker is required", p.ID, name)
		}
		if strings.TrimSpace(spec.Shape.PricePath) == "" {
			return fmt.Errorf("profile %s/%s: shape.price_path is required", p.ID, name)
		}
		for _, f := range spec.Fields {
			if len(f.Candidates) == 0 {
				return fmt.Errorf("profile %s/%s: field %s has no locator candidates", p.ID, name, f.Name)
			}
			if f.Derive != "" {
				if _, ok := deriveFuncs[f.Derive]; !ok {
					return fmt.Errorf("profile %s/%s: field %s: unknown derive %q", p.ID, name, f.Name, f.Derive)
				}
			}
		}
	}
	return nil
}
