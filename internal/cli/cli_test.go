package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetscapeCookies(t *testing.T) {
	doc := strings.Join([]string{
		"# Netscape HTTP Cookie File",
		"",
		".leboncoin.fr\tTRUE\t/\tTRUE\t1893456000\tdatadome\tabc123",
		"#HttpOnly_.leboncoin.fr\tTRUE\t/\tTRUE\t0\tluat\ttok",
		"malformed line",
	}, "\n")

	cookies, err := parseNetscapeCookies(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	assert.Equal(t, "datadome", cookies[0].Name)
	assert.Equal(t, "abc123", cookies[0].Value)
	assert.True(t, cookies[0].Secure)
	assert.False(t, cookies[0].HTTPOnly)
	assert.Equal(t, 1893456000.0, cookies[0].Expires)

	assert.Equal(t, "luat", cookies[1].Name)
	assert.True(t, cookies[1].HTTPOnly)
	assert.Zero(t, cookies[1].Expires)
}

func TestParseJSONCookies(t *testing.T) {
	doc := `[
		{"name":"sid","value":"1","domain":".kufar.by","expirationDate":1893456000.5},
		{"name":"lang","value":"ru","domain":".kufar.by","path":"/l","expires":1700000000},
		{"value":"orphan"}
	]`

	cookies, err := parseJSONCookies(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, 1893456000.5, cookies[0].Expires)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Equal(t, 1700000000.0, cookies[1].Expires)
	assert.Equal(t, "/l", cookies[1].Path)

	_, err = parseJSONCookies(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestImportInteractive(t *testing.T) {
	in := strings.NewReader("sid\nabc\n\nempty\n\ncsrf\nxyz\n.other.example\n\n")
	var out bytes.Buffer

	cookies, err := importInteractive(in, &out, ".shop.example")
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, ".shop.example", cookies[0].Domain)
	assert.Equal(t, ".other.example", cookies[1].Domain)
	assert.Contains(t, out.String(), "Skipping cookie with empty value")
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("y\n"), &out, "Delete?"))
	assert.True(t, confirm(strings.NewReader("YES\n"), &out, "Delete?"))
	assert.False(t, confirm(strings.NewReader("\n"), &out, "Delete?"))
	assert.False(t, confirm(strings.NewReader(""), &out, "Delete?"))
}

func TestScrapeOptionsMonitor(t *testing.T) {
	cmd := &cobra.Command{}
	var opts scrapeOptions
	cmd.Flags().Float64Var(&opts.minPrice, "min-price", 0, "")
	cmd.Flags().Float64Var(&opts.maxPrice, "max-price", 0, "")
	require.NoError(t, cmd.ParseFlags([]string{"--min-price", "0"}))
	opts.userID = "alice"
	opts.dryRun = true

	m := opts.monitor(cmd, "https://shop.example/search?q=x")
	assert.True(t, strings.HasPrefix(m.ID, "cli-"))
	assert.Equal(t, "alice", m.UserID)
	assert.Equal(t, models.ModeDryRun, m.Mode)
	require.NotNil(t, m.MinPrice)
	assert.Zero(t, *m.MinPrice)
	assert.Nil(t, m.MaxPrice)
}

func TestSitesCommand(t *testing.T) {
	dir := t.TempDir()
	sitesPath := filepath.Join(dir, "sites.yaml")
	require.NoError(t, os.WriteFile(sitesPath, []byte(`
sites:
  - id: shop
    domain: shop.example
    url_patterns: ['^https://shop\.example/search']
    container_selectors: [main, '#results']
    extraction:
      item: .ad
`), 0o600))
	t.Setenv("MARKETWATCH_CONFIG", "")
	t.Setenv("MARKETWATCH_SESSION_DIR", filepath.Join(dir, "sessions"))
	t.Setenv("MARKETWATCH_DIAGNOSIS_SINK", "none")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"sites", "--sites", sitesPath, "--quiet"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "shop.example")
	assert.Contains(t, out.String(), "main | #results")
}
