package emailpattern

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectPatternTemplates(t *testing.T) {
	cases := []struct {
		email string
		want  Pattern
	}{
		{"jane.smith@acme.com", PatternFirstDotLast},
		{"janesmith@acme.com", PatternFirstLast},
		{"jane_smith@acme.com", PatternFirstULast},
		{"jsmith@acme.com", PatternFLast},
		{"janes@acme.com", PatternFirstL},
		{"j.smith@acme.com", PatternFDotLast},
		{"jane@acme.com", PatternFirst},
		{"smith@acme.com", PatternLast},
		{"smithjane@acme.com", PatternLastFirst},
		{"smith.jane@acme.com", PatternLastDotFirst},
		{"smithj@acme.com", PatternLastF},
		{"js@acme.com", PatternFL},
		{"info@acme.com", PatternGeneric},
		{"contact@acme.com", PatternGeneric},
		{"bob.jones@acme.com", PatternUnknown},
		{"not-an-email", PatternUnknown},
	}
	for _, tc := range cases {
		got := DetectPattern(tc.email, "Jane", "Smith")
		require.Equal(t, tc.want, got, "email %s", tc.email)
	}
}

func TestDetectPatternCaseAndWhitespace(t *testing.T) {
	require.Equal(t, PatternFirstDotLast, DetectPattern("  Jane.Smith@ACME.com ", " jane ", " SMITH "))
	require.Equal(t, PatternFLast, DetectPattern("modonnell@x.co", "Mary", "O'Donnell"))
}

func TestLearnPatternMajority(t *testing.T) {
	got := LearnPattern([]Sample{
		{"jane.smith@acme.com", "Jane", "Smith"},
		{"john.smith@acme.com", "John", "Smith"},
	})
	require.Equal(t, PatternFirstDotLast, got)

	got = LearnPattern([]Sample{
		{"jsmith@acme.com", "Jane", "Smith"},
		{"bob.lee@acme.com", "Bob", "Lee"},
		{"alee@acme.com", "Anna", "Lee"},
	})
	require.Equal(t, PatternFLast, got, "majority of classifiable samples wins")
}

func TestLearnPatternTieKeepsFirstEncountered(t *testing.T) {
	got := LearnPattern([]Sample{
		{"jane.smith@acme.com", "Jane", "Smith"},
		{"blee@acme.com", "Bob", "Lee"},
	})
	require.Equal(t, PatternFirstDotLast, got)
}

func TestLearnPatternNoClassifiableSamplesDefaults(t *testing.T) {
	require.Equal(t, PatternFirstDotLast, LearnPattern(nil))
	require.Equal(t, PatternFirstDotLast, LearnPattern([]Sample{
		{"xyz123@acme.com", "Jane", "Smith"},
	}))
}

func TestGenerateInverseOfDetect(t *testing.T) {
	got, err := Generate(PatternFirstDotLast, "Bob", "Jones", "acme.com")
	require.NoError(t, err)
	require.Equal(t, "bob.jones@acme.com", got)

	got, err = Generate(PatternFLast, " Bob ", "JONES", "ACME.com")
	require.NoError(t, err)
	require.Equal(t, "bjones@acme.com", got)

	got, err = Generate(PatternGeneric, "", "", "acme.com")
	require.NoError(t, err)
	require.Equal(t, "info@acme.com", got)
}

func TestGenerateRoundTripsAllNamedTemplates(t *testing.T) {
	for _, p := range []Pattern{
		PatternFirstDotLast, PatternFirstLast, PatternFirstULast, PatternFLast,
		PatternFirstL, PatternFDotLast, PatternFirst, PatternLast,
		PatternLastFirst, PatternLastDotFirst, PatternLastF, PatternFL,
	} {
		email, err := Generate(p, "Mara", "Voss", "acme.com")
		require.NoError(t, err, "pattern %s", p)
		require.Equal(t, p, DetectPattern(email, "Mara", "Voss"), "pattern %s produced %s", p, email)
	}
}

func TestGenerateErrors(t *testing.T) {
	_, err := Generate(PatternFirstDotLast, "", "Jones", "acme.com")
	require.Error(t, err)
	_, err = Generate(PatternUnknown, "Bob", "Jones", "acme.com")
	require.Error(t, err)
	_, err = Generate(PatternFirstDotLast, "Bob", "Jones", "")
	require.Error(t, err)
}

func TestDomainOf(t *testing.T) {
	require.Equal(t, "acme.com", DomainOf("Jane.Smith@ACME.COM"))
	require.Equal(t, "", DomainOf("nonsense"))
}
