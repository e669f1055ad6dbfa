package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSourceSpecs(t *testing.T) {
	list := `
- name: US Embassy Nairobi
  url: https://ke.usembassy.gov/news-events/
  country: Kenya
  type: web
- name: BBC Africa
  url: https://www.bbc.co.uk/news/world/africa
  enabled: false
`
	specs, err := readSourceSpecs(strings.NewReader(list))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "Kenya", specs[0].Country)
	require.NotNil(t, specs[1].Enabled)
	assert.False(t, *specs[1].Enabled)

	doc := "sources:\n  - name: Feed\n    url: https://example.com/rss\n    type: rss\n"
	specs, err = readSourceSpecs(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "rss", specs[0].Type)

	_, err = readSourceSpecs(strings.NewReader("sources: []\n"))
	assert.Error(t, err)
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE", "memory")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestImportFromStdin(t *testing.T) {
	out, err := runCLI(t, "- name: Example\n  url: https://example.com\n", "sources", "import", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "example-com")
}

func TestCreateEmptyJobRunsToDone(t *testing.T) {
	out, err := runCLI(t, "", "jobs", "create", "--run")
	require.NoError(t, err)
	assert.Contains(t, out, "created over 0 sources")
	assert.Contains(t, out, "done")
}

func TestStatusUnknownJob(t *testing.T) {
	_, err := runCLI(t, "", "jobs", "status", "missing")
	assert.Error(t, err)
}
