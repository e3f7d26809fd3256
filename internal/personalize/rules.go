package personalize

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules holds the copy-editing guardrails applied to generated drafts.
// Teams override them with a yaml file; the defaults match house style.
type Rules struct {
	// BannedOpeners are phrases a draft may not open with. Matching is
	// case-insensitive on the first sentence after the greeting.
	BannedOpeners []string `yaml:"banned_openers"`
	// SignOff closes every draft.
	SignOff string `yaml:"sign_off"`
	// MaxBodyWords soft-caps draft length in the generation prompt.
	MaxBodyWords int `yaml:"max_body_words"`
}

// DefaultRules returns the built-in house rules.
func DefaultRules() *Rules {
	return &Rules{
		BannedOpeners: []string{
			"i hope this email finds you well",
			"i hope this message finds you well",
			"i hope you're doing well",
			"i hope you are doing well",
			"my name is",
			"i am reaching out",
			"i'm reaching out",
		},
		SignOff:      "Best,",
		MaxBodyWords: 120,
	}
}

// LoadRules reads rules from a yaml file. An empty path returns the
// defaults; unset fields fall back to defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "personalize: read rules %s", path)
	}

	rules := &Rules{}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, eris.Wrapf(err, "personalize: parse rules %s", path)
	}

	defaults := DefaultRules()
	if len(rules.BannedOpeners) == 0 {
		rules.BannedOpeners = defaults.BannedOpeners
	}
	if rules.SignOff == "" {
		rules.SignOff = defaults.SignOff
	}
	if rules.MaxBodyWords <= 0 {
		rules.MaxBodyWords = defaults.MaxBodyWords
	}
	return rules, nil
}
