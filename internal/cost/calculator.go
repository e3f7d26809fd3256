// Package cost computes the credit price of a pipeline run and the USD
// cost of the generation calls behind it. Credits are what the user's
// account is charged; USD figures are logged for internal attribution.
package cost

// Rates holds credit pricing plus per-model token rates.
type Rates struct {
	Credits   CreditRates          `yaml:"credits" mapstructure:"credits"`
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// CreditRates prices the user-facing units of work.
type CreditRates struct {
	// PerContact is charged for every contact returned to the user.
	PerContact int `yaml:"per_contact" mapstructure:"per_contact"`
	// PerVerifiedEmail is the surcharge for a finder-verified address.
	PerVerifiedEmail int `yaml:"per_verified_email" mapstructure:"per_verified_email"`
	// PerDraft is charged for each draft successfully created.
	PerDraft int `yaml:"per_draft" mapstructure:"per_draft"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes charges for pipeline runs.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Request returns the credit cost of a run that returned the given
// number of contacts, verified emails and created drafts.
func (c *Calculator) Request(contacts, verifiedEmails, drafts int) int {
	return contacts*c.rates.Credits.PerContact +
		verifiedEmails*c.rates.Credits.PerVerifiedEmail +
		drafts*c.rates.Credits.PerDraft
}

// Quote returns the maximum credit cost of a request for the given
// contact count, assuming every contact verifies and drafts. Used for
// the balance check before any charge.
func (c *Calculator) Quote(contacts int) int {
	return c.Request(contacts, contacts, contacts)
}

// Claude computes the USD cost of a Claude call. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// DefaultRates returns the default pricing.
func DefaultRates() Rates {
	return Rates{
		Credits: CreditRates{
			PerContact:       1,
			PerVerifiedEmail: 1,
			PerDraft:         1,
		},
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
	}
}
