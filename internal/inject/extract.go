package inject

import (
	"regexp"
	"strings"

	"github.com/ShayCichocki/taskweave/internal/analyze"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

const (
	maxConstraints = 10
	maxExamples    = 5
)

// labelled is an ordered table of label to patterns. The first label with
// a matching pattern wins.
type labelled struct {
	label    string
	patterns []*regexp.Regexp
}

func table(entries ...labelled) []labelled { return entries }

func entry(label string, patterns ...string) labelled {
	return labelled{label: label, patterns: compilePatterns(patterns)}
}

// compilePatterns compiles a slice of pattern strings into case-insensitive regexps.
func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile("(?i)" + p)
	}
	return compiled
}

func countMatches(text string, patterns []*regexp.Regexp) int {
	n := 0
	for _, p := range patterns {
		n += len(p.FindAllStringIndex(text, -1))
	}
	return n
}

var toneTable = table(
	entry("formal", `\bformal\b`, `\bprofessional(?:ly)?\b`, `\bbusiness[- ]like\b`),
	entry("casual", `\bcasual\b`, `\binformal\b`, `\bconversational\b`, `\bfriendly\b`, `\blight[- ]hearted\b`),
	entry("technical", `\btechnical tone\b`, `\bprecise\b`, `\bfor engineers\b`),
	entry("persuasive", `\bpersuasive\b`, `\bconvinc\w*`, `\bcompelling\b`),
	entry("academic", `\bacademic\b`, `\bscholarly\b`),
	entry("concise", `\bconcise\b`, `\bbrief\b`, `\bsuccinct\b`, `\bshort and\b`),
	entry("empathetic", `\bempathetic\b`, `\bwarm\b`, `\bsupportive\b`),
)

var formatTable = table(
	entry("json", `\bjson\b`),
	entry("yaml", `\bya?ml\b`),
	entry("csv", `\bcsv\b`),
	entry("table", `\btables?\b`, `\btabular\b`),
	entry("markdown", `\bmarkdown\b`, `\bmd format\b`),
	entry("bullet points", `\bbullet(?:ed)?(?: points?| list)?\b`),
	entry("numbered list", `\bnumbered list\b`),
	entry("code", `\bcode snippets?\b`, "```"),
	entry("email", `\be-?mail\b`),
	entry("report", `\breport\b`),
	entry("essay", `\bessay\b`),
	entry("slides", `\bslides?\b`, `\bpresentation\b`),
)

var domainTable = table(
	entry("software", `\bcode\b`, `\bsoftware\b`, `\bapi\b`, `\bdatabase\b`, `\bdeploy\w*`, `\bbackend\b`, `\bfrontend\b`, `\bservice\b`),
	entry("finance", `\brevenue\b`, `\bpric\w*`, `\bbudget\w*`, `\bfinanc\w*`, `\binvest\w*`, `\bprofit\w*`),
	entry("marketing", `\bmarketing\b`, `\bcampaign\w*`, `\bbrand\w*`, `\bcompetitor\w*`, `\bseo\b`, `\bcustomer\w*`),
	entry("healthcare", `\bpatient\w*`, `\bclinical\b`, `\bmedical\b`, `\bhealth\w*`),
	entry("legal", `\bcontract\w*`, `\blegal\b`, `\bcomplian\w*`, `\bregulat\w*`),
	entry("education", `\bstudents?\b`, `\bcourse\w*`, `\bcurricul\w*`, `\bteach\w*`, `\blesson\w*`),
	entry("science", `\bexperiment\w*`, `\bhypothes\w*`, `\bresearch paper\b`, `\bpeer[- ]review\w*`),
)

var (
	explicitToneRe   = regexp.MustCompile(`(?i)\bin an?\s+([a-z-]+)\s+tone\b|\btone\s*(?:should be|must be|:)\s*([a-z-]+)`)
	explicitFormatRe = regexp.MustCompile(`(?i)\bformat\s*:\s*([a-z -]{2,30}?)(?:[.,;\n]|$)`)
	styleGuideRe     = regexp.MustCompile(`(?i)\b(?:follow(?:ing)?|use|using|per|according to)\s+(?:the\s+)?([A-Za-z0-9][\w.+-]*(?:\s+[A-Za-z0-9][\w.+-]*)?)\s+style(?:\s+guide)?\b`)
	namedStyleRe     = regexp.MustCompile(`\b(APA|MLA|Chicago|AP|IEEE|PEP ?8|Google|Airbnb|Microsoft)\s+style\b`)
	explicitStyleRe  = regexp.MustCompile(`(?i)\bstyle\s+guide\s*:\s*([^.\n;]{2,60})`)
	audienceRe       = regexp.MustCompile(`(?i)\b(?:for|to|aimed at|targeting)\s+(?:an?\s+|the\s+|our\s+)?((?:non-technical|technical|executive|senior|junior|general|beginner|expert|new|internal|external)?\s*(?:audiences?|readers|executives|stakeholders|developers|engineers|customers|beginners|students|managers|users|investors|clients|leadership))\b`)
	explicitAudRe    = regexp.MustCompile(`(?i)\b(?:audience\s*(?:is|:)|target audience\s*(?:is|:)?)\s*([^.\n;]{2,60})`)

	requirementRe = regexp.MustCompile(`(?i)\b(?:must|should|required?|requires|need(?:s)? to|do not|don't|never|avoid|only|at (?:most|least)|no more than|no longer than|limit(?:ed)? to|within|exactly|ensure)\b`)
	exampleRe     = regexp.MustCompile(`(?i)(?:\be\.g\.|\bfor example\b|\bfor instance\b|\bsuch as\b|\bexample\s*:)`)
)

// ExtractContext runs every contextual extractor over the original prompt.
// Extractors that find nothing report models.Unspecified.
func ExtractContext(prompt string) models.ContextMetadata {
	return models.ContextMetadata{
		Tone:        ExtractTone(prompt),
		Format:      ExtractFormat(prompt),
		StyleGuide:  ExtractStyleGuide(prompt),
		Domain:      ExtractDomain(prompt),
		Audience:    ExtractAudience(prompt),
		Constraints: ExtractConstraints(prompt),
		Examples:    ExtractExamples(prompt),
	}
}

// ExtractTone returns the requested tone.
func ExtractTone(prompt string) string {
	if m := explicitToneRe.FindStringSubmatch(prompt); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				return strings.ToLower(g)
			}
		}
	}
	return firstLabel(prompt, toneTable)
}

// ExtractFormat returns the requested output format.
func ExtractFormat(prompt string) string {
	if m := explicitFormatRe.FindStringSubmatch(prompt); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	return firstLabel(prompt, formatTable)
}

// ExtractStyleGuide returns a named style guide.
func ExtractStyleGuide(prompt string) string {
	if m := explicitStyleRe.FindStringSubmatch(prompt); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := namedStyleRe.FindStringSubmatch(prompt); m != nil {
		return m[1]
	}
	if m := styleGuideRe.FindStringSubmatch(prompt); m != nil {
		return strings.TrimSpace(m[1])
	}
	return models.Unspecified
}

// ExtractDomain returns the domain with the most keyword hits.
// Ties go to the earlier table entry.
func ExtractDomain(prompt string) string {
	best, bestHits := models.Unspecified, 0
	for _, e := range domainTable {
		if hits := countMatches(prompt, e.patterns); hits > bestHits {
			best, bestHits = e.label, hits
		}
	}
	return best
}

// ExtractAudience returns the intended audience.
func ExtractAudience(prompt string) string {
	if m := explicitAudRe.FindStringSubmatch(prompt); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	if m := audienceRe.FindStringSubmatch(prompt); m != nil {
		return strings.ToLower(strings.Join(strings.Fields(m[1]), " "))
	}
	return models.Unspecified
}

// ExtractConstraints returns the sentences that state requirements.
func ExtractConstraints(prompt string) []string {
	return matchingSentences(prompt, requirementRe, maxConstraints)
}

// ExtractExamples returns the sentences that carry examples.
func ExtractExamples(prompt string) []string {
	return matchingSentences(prompt, exampleRe, maxExamples)
}

func matchingSentences(prompt string, re *regexp.Regexp, limit int) []string {
	var out []string
	for _, s := range analyze.SplitSentences(prompt) {
		if re.MatchString(s) {
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func firstLabel(text string, t []labelled) string {
	for _, e := range t {
		for _, p := range e.patterns {
			if p.MatchString(text) {
				return e.label
			}
		}
	}
	return models.Unspecified
}
