package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestKey_SamePersonSameKey(t *testing.T) {
	tests := []struct {
		name string
		a, b model.CandidateRecord
	}{
		{
			"case differences",
			model.CandidateRecord{FirstName: "Grace", LastName: "Hopper", Organization: "Acme Corp"},
			model.CandidateRecord{FirstName: "GRACE", LastName: "hopper", Organization: "ACME CORP"},
		},
		{
			"punctuation and diacritics",
			model.CandidateRecord{FirstName: "José", LastName: "O'Brien", Organization: "Acme, Inc."},
			model.CandidateRecord{FirstName: "Jose", LastName: "OBrien", Organization: "Acme Inc"},
		},
		{
			"whitespace collapse",
			model.CandidateRecord{FirstName: "Mary  Jane", LastName: "Watson", Organization: "Daily Bugle"},
			model.CandidateRecord{FirstName: "Mary Jane", LastName: "Watson ", Organization: " Daily  Bugle"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, oka := Key(tt.a)
			kb, okb := Key(tt.b)
			require.True(t, oka)
			require.True(t, okb)
			assert.Equal(t, ka, kb)
		})
	}
}

func TestKey_DistinctPeopleDistinctKeys(t *testing.T) {
	a, _ := Key(model.CandidateRecord{FirstName: "Grace", LastName: "Hopper", Organization: "Acme"})
	b, _ := Key(model.CandidateRecord{FirstName: "Grace", LastName: "Hopper", Organization: "Globex"})
	c, _ := Key(model.CandidateRecord{FirstName: "Alan", LastName: "Turing", Organization: "Acme"})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestKey_EmailFallback(t *testing.T) {
	k1, ok := Key(model.CandidateRecord{RawEmail: "ada@example.com"})
	require.True(t, ok)
	k2, ok := Key(model.CandidateRecord{RawEmail: " Ada@Example.com "})
	require.True(t, ok)
	assert.Equal(t, k1, k2)

	// A name-keyed record never matches an email-keyed one.
	named, _ := Key(model.CandidateRecord{FirstName: "Ada", LastName: "Lovelace"})
	assert.NotEqual(t, k1, named)
}

func TestKey_ProfileURLFallback(t *testing.T) {
	k, ok := Key(model.CandidateRecord{ProfileURL: "https://linkedin.com/in/ada"})
	require.True(t, ok)
	assert.NotEmpty(t, k)
}

func TestKey_FailsOpenOnEmptyRecord(t *testing.T) {
	k, ok := Key(model.CandidateRecord{})
	assert.False(t, ok)
	assert.Empty(t, k)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Acme, Inc.", "acme inc"},
		{"  Sören   Kierkegaard ", "soren kierkegaard"},
		{"O'Neil-Smith", "oneilsmith"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}
