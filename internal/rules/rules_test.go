package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/mode"
	"github.com/wolfeidau/assetpipe/internal/naming"
)

func TestDefaultTable_Resolve(t *testing.T) {
	table := DefaultTable(mode.Production)

	tests := []struct {
		path     string
		expected string
	}{
		{path: "src/index.html", expected: "html"},
		{path: "src/css/reset.css", expected: "css"},
		{path: "src/scss/style.scss", expected: "sass"},
		{path: "src/scss/legacy.SASS", expected: "sass"},
		{path: "src/assets/logo.png", expected: "images"},
		{path: "src/assets/photo.JPEG", expected: "images"},
		{path: "src/assets/icon.svg", expected: "images"},
		{path: "src/fonts/inter.woff2", expected: "fonts"},
		{path: "src/js/main.js", expected: "script"},
		{path: "src/js/app.mjs", expected: "script"},
		{path: "node_modules/lodash/lodash.js", expected: "vendor-script"},
		{path: "node_modules/pkg/dist/index.cjs", expected: "vendor-script"},
		{path: "src/data/config.json", expected: "json"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e, err := table.Resolve(tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.expected, e.Name)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	table := DefaultTable(mode.Development)

	first, err := table.Resolve("src/assets/logo.png")
	require.NoError(t, err)

	for range 10 {
		again, err := table.Resolve("src/assets/logo.png")
		require.NoError(t, err)
		require.Equal(t, first.Name, again.Name)
		require.Equal(t, first.Output, again.Output)
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	broad := mustCompile("broad", `\.js$`, "", []Step{{Name: StepBabel}}, naming.Policy{Dir: "js"})
	narrow := mustCompile("narrow", `main\.js$`, "", nil, naming.Policy{Dir: "other"})

	table, err := NewTable(broad, narrow)
	require.NoError(t, err)
	e, err := table.Resolve("src/js/main.js")
	require.NoError(t, err)
	require.Equal(t, "broad", e.Name)

	reversed, err := NewTable(narrow, broad)
	require.NoError(t, err)
	e, err = reversed.Resolve("src/js/main.js")
	require.NoError(t, err)
	require.Equal(t, "narrow", e.Name)
}

func TestResolve_ExcludeDependencyDir(t *testing.T) {
	table := DefaultTable(mode.Production)

	for _, p := range []string{
		"node_modules/react/index.js",
		"/home/me/site/node_modules/lit/index.mjs",
		`C:\site\node_modules\preact\dist\preact.js`,
	} {
		e, err := table.Resolve(p)
		require.NoError(t, err)
		assert.NotEqual(t, "script", e.Name, p)
		assert.NotContains(t, e.StepNames(), StepBabel, p)
	}
}

func TestResolve_NoRuleMatched(t *testing.T) {
	table := DefaultTable(mode.Production)

	for _, p := range []string{"src/README.md", "src/assets/logo", "src/assets/logo."} {
		_, err := table.Resolve(p)
		require.Error(t, err, p)
		require.True(t, errors.Is(err, ErrNoRuleMatched))

		var nrm *NoRuleMatchedError
		require.ErrorAs(t, err, &nrm)
		require.Equal(t, p, nrm.Path)
	}
}

func TestDefaultTable_Naming(t *testing.T) {
	dev, err := DefaultTable(mode.Development).Resolve("src/assets/logo.png")
	require.NoError(t, err)
	require.Equal(t, "img/logo.png", dev.Output.Name("logo", "png", []byte("png")))
	require.True(t, dev.Emits())

	prod, err := DefaultTable(mode.Production).Resolve("src/assets/logo.png")
	require.NoError(t, err)
	require.Equal(t, "img/logo."+naming.Fingerprint([]byte("png"))+".png", prod.Output.Name("logo", "png", []byte("png")))
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		test    string
		exclude string
		use     []Step
		errMsg  string
	}{
		{
			name: "valid",
			rule: "ok",
			test: `\.txt$`,
		},
		{
			name:   "missing name",
			test:   `\.txt$`,
			errMsg: "name is required",
		},
		{
			name:   "missing test",
			rule:   "t",
			errMsg: "test pattern is required",
		},
		{
			name:   "invalid regexp",
			rule:   "t",
			test:   `\.(txt$`,
			errMsg: "invalid test pattern",
		},
		{
			name:    "invalid exclude",
			rule:    "t",
			test:    `\.txt$`,
			exclude: `(`,
			errMsg:  "invalid exclude pattern",
		},
		{
			name:   "empty alternative",
			rule:   "images",
			test:   `\.(?:|gif|png|jpg|jpeg|svg)$`,
			errMsg: "empty alternative",
		},
		{
			name:   "empty alternative in flag group",
			rule:   "images",
			test:   `\.(?i:|png|jpg)$`,
			errMsg: "empty alternative",
		},
		{
			name: "pipes inside a character class",
			rule: "t",
			test: `[(|]x$`,
		},
		{
			name: "escaped pipes",
			rule: "t",
			test: `\(\|\|x$`,
		},
		{
			name:   "matches everything",
			rule:   "all",
			test:   `.*`,
			errMsg: "matches the empty path",
		},
		{
			name:   "file step not last",
			rule:   "t",
			test:   `\.txt$`,
			use:    []Step{{Name: StepFile}, {Name: StepCSS}},
			errMsg: "must be the last step",
		},
		{
			name:   "unnamed step",
			rule:   "t",
			test:   `\.txt$`,
			use:    []Step{{}},
			errMsg: "has no name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rule, tt.test, tt.exclude, tt.use, naming.Policy{})
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewTable(t *testing.T) {
	_, err := NewTable()
	require.Error(t, err)

	e := mustCompile("a", `\.a$`, "", nil, naming.Policy{})
	_, err = NewTable(e, e)
	require.ErrorContains(t, err, "duplicate rule name")

	_, err = NewTable(Entry{Name: "nil"})
	require.ErrorContains(t, err, "no matcher")
}

func TestTable_EntriesIsACopy(t *testing.T) {
	table := DefaultTable(mode.Production)
	entries := table.Entries()
	entries[0].Name = "mutated"

	again := table.Entries()
	require.Equal(t, "html", again[0].Name)
	require.Equal(t, 8, table.Len())
}
