package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "CS Year 1",
		Headers: []string{"Day", "Period", "Course", "Room"},
		Rows: []map[string]string{
			{"Day": "Monday", "Period": "08:00-10:00", "Course": "Algorithms", "Room": "H1"},
			{"Day": "Tuesday", "Period": "10:00-11:00", "Course": "Calculus, Part I"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Day,Period,Course,Room", lines[0])
	assert.Equal(t, "Monday,08:00-10:00,Algorithms,H1", lines[1])
	assert.Equal(t, `Tuesday,10:00-11:00,"Calculus, Part I",`, lines[2])
}

func TestExportersRequireHeaders(t *testing.T) {
	for _, r := range []Renderer{NewCSVExporter(), NewPDFExporter(), NewXLSXExporter()} {
		_, err := r.Render(Dataset{})
		assert.Error(t, err, r.Extension())
	}
}

func TestPDFExporterRender(t *testing.T) {
	data := sampleDataset()
	data.Headers = append(data.Headers, "Staff", "Group")
	out, err := NewPDFExporter().Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	exporter := NewXLSXExporter()
	out, err := exporter.Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("CS Year 1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Day", "Period", "Course", "Room"}, rows[0])
	assert.Equal(t, "Calculus, Part I", rows[2][2])
	assert.Equal(t, "xlsx", exporter.Extension())
}

func TestXLSXExporterTruncatesSheetName(t *testing.T) {
	data := sampleDataset()
	data.Title = strings.Repeat("x", 40)
	out, err := NewXLSXExporter().Render(data)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{strings.Repeat("x", 31)}, f.GetSheetList())
}
