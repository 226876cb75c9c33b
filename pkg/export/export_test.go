package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Columns: []string{"email", "registered"},
		Labels:  map[string]string{"email": "Email"},
		Rows: []map[string]string{
			{"email": "a@example.com", "registered": "yes"},
			{"email": "b, c@example.com"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Email,registered\na@example.com,yes\n\"b, c@example.com\",\n", string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Document{
		Title:    "Application",
		Subtitle: "learner@example.com",
		Sections: []Section{
			{Heading: "Contact", Fields: []Field{{Label: "Organization", Value: "ADG"}}},
			{Heading: "Education", Table: &Dataset{Columns: []string{"school"}, Rows: []map[string]string{{"school": "KAU"}}}},
			{Heading: "Cover letter", Body: "I would like to join."},
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render(Document{})
	assert.Error(t, err)
}
