// Package dashboard renders the operator status page.
package dashboard

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"dirdoctor/internal/alert"
	"dirdoctor/internal/authority"
	"dirdoctor/internal/docstore"
	"dirdoctor/internal/metrics"
)

const timeLayout = "2006-01-02 15:04:05"

// Page is everything the template shows.
type Page struct {
	Generated  string
	Vantage    string
	ValidAfter string
	Method     int
	Fresh      bool
	Params     string

	Warnings    []WarningRow
	Authorities []AuthorityRow
	Stats       []StatsRow
	StatsSince  string
	Percentiles []int
}

// WarningRow is one rendered warning line.
type WarningRow struct {
	Severity string
	Text     string
}

// AuthorityRow summarizes what one authority served and signed.
type AuthorityRow struct {
	Nickname      string
	Address       string
	ValidAfter    string
	Fresh         bool
	HasConsensus  bool
	Voted         bool
	Signed        bool
	HasVote       bool
	DirKeyExpires string
	Measured      int
	Relays        int
}

// StatsRow holds one authority's download percentiles in milliseconds.
type StatsRow struct {
	Nickname    string
	Percentiles []string
	Missing     int
}

// Input bundles the data of one run.
type Input struct {
	Store     *docstore.Store
	Registry  authority.Registry
	Messages  []alert.Message
	Stats     metrics.Summary
	Vantage   string
	Freshness time.Duration
	Now       time.Time
}

// NewPage builds the view model.
func NewPage(in Input) Page {
	if in.Freshness <= 0 {
		in.Freshness = docstore.DefaultFreshness
	}
	p := Page{
		Generated:   in.Now.UTC().Format(timeLayout),
		Vantage:     in.Vantage,
		StatsSince:  in.Stats.Since.UTC().Format(timeLayout),
		Percentiles: metrics.Percentiles,
	}

	ref := in.Store.Reference()
	if ref != nil {
		p.ValidAfter = ref.ValidAfter.UTC().Format(timeLayout)
		p.Method = ref.ConsensusMethod
		p.Fresh = docstore.IsFresh(ref.ValidAfter, in.Now, in.Freshness)
		p.Params = formatParams(ref.Params)
	}

	for _, m := range in.Messages {
		p.Warnings = append(p.Warnings, WarningRow{Severity: m.Severity.String(), Text: m.Text})
	}

	for _, peer := range in.Registry.Peers() {
		row := AuthorityRow{Nickname: peer.Nickname, Address: peer.Addr()}
		if c, ok := in.Store.Consensus(peer.Nickname); ok {
			row.HasConsensus = true
			row.ValidAfter = c.ValidAfter.UTC().Format(timeLayout)
			row.Fresh = docstore.IsFresh(c.ValidAfter, in.Now, in.Freshness)
		}
		if ref != nil {
			_, row.Voted = ref.DirSources[peer.Nickname]
			row.Signed = ref.Signatures[peer.Nickname]
		}
		if v, ok := in.Store.Vote(peer.Nickname); ok {
			row.HasVote = true
			row.DirKeyExpires = v.DirKeyExpires.UTC().Format(timeLayout)
			row.Relays = len(v.StatusEntries)
			for _, e := range v.StatusEntries {
				if e.HasMeasured {
					row.Measured++
				}
			}
		}
		p.Authorities = append(p.Authorities, row)
	}

	for _, peer := range in.Stats.Peers() {
		row := StatsRow{Nickname: peer, Missing: in.Stats.Missing(peer)}
		for _, pct := range metrics.Percentiles {
			d, _ := in.Stats.Percentile(peer, pct)
			row.Percentiles = append(row.Percentiles, fmt.Sprintf("%d", d.Milliseconds()))
		}
		p.Stats = append(p.Stats, row)
	}
	return p
}

func formatParams(params map[string]int) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, params[k])
	}
	return strings.Join(parts, " ")
}

var page = template.Must(template.New("page").Funcs(template.FuncMap{
	"lower": strings.ToLower,
}).Parse(pageTemplate))

// Render writes the page as HTML.
func Render(w io.Writer, p Page) error {
	return page.Execute(w, p)
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Consensus health</title>
<style>
body { font-family: sans-serif; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 2px 6px; }
.error { color: #b00; } .warning { color: #c60; } .notice { color: #666; }
.bad { background: #fdd; }
</style>
</head>
<body>
<h1>Consensus health</h1>
<p>Generated {{.Generated}} UTC{{if .Vantage}} from {{.Vantage}}{{end}}.</p>
{{if .ValidAfter}}
<p>Reference consensus valid-after {{.ValidAfter}} (method {{.Method}}){{if not .Fresh}} <strong class="error">not fresh</strong>{{end}}.</p>
{{if .Params}}<p>Parameters: <code>{{.Params}}</code></p>{{end}}
{{else}}
<p class="error">No consensus known.</p>
{{end}}

<h2>Warnings</h2>
{{if .Warnings}}<ul>
{{range .Warnings}}<li class="{{lower .Severity}}">{{.Text}}</li>
{{end}}</ul>{{else}}<p>None.</p>{{end}}

<h2>Authorities</h2>
<table>
<tr><th>Nickname</th><th>Address</th><th>Consensus valid-after</th><th>Voted</th><th>Signed</th><th>Key expires</th><th>Relays</th><th>Measured</th></tr>
{{range .Authorities}}<tr>
<td>{{.Nickname}}</td><td>{{.Address}}</td>
<td{{if not .Fresh}} class="bad"{{end}}>{{if .HasConsensus}}{{.ValidAfter}}{{else}}none{{end}}</td>
<td>{{if .Voted}}yes{{else}}no{{end}}</td>
<td>{{if .Signed}}yes{{else}}no{{end}}</td>
{{if .HasVote}}<td>{{.DirKeyExpires}}</td><td>{{.Relays}}</td><td>{{.Measured}}</td>{{else}}<td class="bad" colspan="3">no vote</td>{{end}}
</tr>
{{end}}</table>

<h2>Consensus download times (ms) since {{.StatsSince}}</h2>
<table>
<tr><th>Nickname</th>{{range .Percentiles}}<th>p{{.}}</th>{{end}}<th>NA</th></tr>
{{range .Stats}}<tr><td>{{.Nickname}}</td>{{range .Percentiles}}<td>{{.}}</td>{{end}}<td>{{.Missing}}</td></tr>
{{end}}</table>
</body>
</html>
`
