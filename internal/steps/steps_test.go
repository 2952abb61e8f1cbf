package steps

import (
	"testing"

	"github.com/rahul/conductor/internal/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Text
	}
	return out
}

func TestParse_Gherkin(t *testing.T) {
	got := Parse("Given I have data\nWhen I submit the form\nThen I see confirmation")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Given I have data", "When I submit the form", "Then I see confirmation"}, texts(got))
	for i, s := range got {
		assert.Equal(t, i, s.Index)
	}
}

func TestParse_FeatureFile(t *testing.T) {
	feature := `# generated from PROJ-12
Feature: Login
  As a user I want to sign in

  Scenario: valid credentials
    Given I am on https://example.com/login
    When I fill "Email" with "luke@example.com"
    And I click "Sign in"
    Then I should see "Welcome"
`
	got := Parse(feature)
	assert.Equal(t, []string{
		"Given I am on https://example.com/login",
		`When I fill "Email" with "luke@example.com"`,
		`And I click "Sign in"`,
		`Then I should see "Welcome"`,
	}, texts(got))
}

func TestParse_NumberedAndBullets(t *testing.T) {
	got := Parse("1. GET https://api.example.com/users\n2) open https://example.com\n- click \"Go\"")
	assert.Equal(t, []string{"1. GET https://api.example.com/users", "2) open https://example.com", `- click "Go"`}, texts(got))
}

func TestParse_FreeTextIsSingleStep(t *testing.T) {
	got := Parse("  fetch 5 people from the Star Wars API and fill the form  ")
	require.Len(t, got, 1)
	assert.Equal(t, "fetch 5 people from the Star Wars API and fill the form", got[0].Text)
	assert.Equal(t, 0, got[0].Index)
}

func TestParse_CommentsDropped(t *testing.T) {
	got := Parse("# setup\ncheck the users endpoint\n// later")
	require.Len(t, got, 1)
	assert.Equal(t, "check the users endpoint", got[0].Text)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("   \n\t\n"))
	assert.Empty(t, Parse("# only a comment"))
}

func TestParse_Deterministic(t *testing.T) {
	input := "Given I call GET https://api.example.com/users\nThen I see \"ok\" on the page"
	assert.Equal(t, Parse(input), Parse(input))
}

func TestParse_LowercaseKeywordsAreNotMarkers(t *testing.T) {
	got := Parse("given the api is up\nthen it works")
	require.Len(t, got, 1)
}

func TestInferKind(t *testing.T) {
	tests := []struct {
		text string
		want capability.Kind
	}{
		{"GET https://api.example.com/users", capability.KindRequest},
		{"Then the response body contains an id", capability.KindRequest},
		{"the API returns status code 200", capability.KindRequest},
		{`When I click "Login"`, capability.KindInteraction},
		{"When I submit the form", capability.KindInteraction},
		{"Given I have data", ""},
		{"fetch people from the API and fill the form", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, InferKind(tt.text))
		})
	}
}

func TestFromLines(t *testing.T) {
	got := FromLines([]string{"GET https://example.com", "  ", "click \"Go\""})
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, capability.KindInteraction, got[1].Kind)
}
