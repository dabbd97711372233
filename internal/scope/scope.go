// Package scope classifies submissions as in scope, out of scope or harmful
// for the HDB resale domain.
//
// Classification happens in two steps. A deterministic screen rejects
// harmful text (and, in strict mode, text with no domain vocabulary) before
// any model call. Everything that passes is classified by the model, which
// must open its reply with a "SCOPE:" line that ParseVerdict turns into an
// explicit models.Verdict.
package scope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

type Mode string

const (
	// ModeLLM screens harmful text only and leaves relevance to the model.
	ModeLLM Mode = "llm"
	// ModeStrict additionally requires at least one domain term.
	ModeStrict Mode = "strict"
)

var ErrNoVerdict = errors.New("reply has no SCOPE line")

var harmfulTerms = []string{
	"bomb", "explosive", "weapon", "firearm", "kill", "murder", "suicide",
	"self-harm", "terror", "launder", "laundering", "traffick", "hack into",
	"steal", "phishing", "malware", "forge", "forged", "fake document",
	"ic number", "nric of",
}

var domainTerms = []string{
	"hdb", "resale", "flat", "flats", "bto", "ec", "executive", "room",
	"grant", "grants", "cpf", "loan", "mortgage", "lease", "leasehold",
	"valuation", "otp", "option to purchase", "mop", "eligib", "ethnic",
	"quota", "town", "estate", "storey", "floor area", "sqm", "price",
	"prices", "housing", "property", "buyer", "seller", "downpayment",
	"down payment", "stamp duty", "income ceiling", "ehg", "phg",
	"proximity", "singles", "fiance", "transaction", "transactions",
	"ang mo kio", "bedok", "bishan", "bukit batok", "bukit merah",
	"bukit panjang", "bukit timah", "central area", "choa chu kang",
	"clementi", "geylang", "hougang", "jurong", "kallang", "whampoa",
	"marine parade", "pasir ris", "punggol", "queenstown", "sembawang",
	"sengkang", "serangoon", "tampines", "toa payoh", "woodlands", "yishun",
}

type Gate struct {
	mode Mode
}

func NewGate(mode Mode) *Gate {
	if mode != ModeStrict {
		mode = ModeLLM
	}
	return &Gate{mode: mode}
}

func (g *Gate) Mode() Mode {
	return g.mode
}

// Screen returns VerdictHarmful or VerdictOutOfScope when the text is
// rejected deterministically, and VerdictInScope when the model should
// decide.
func (g *Gate) Screen(text string) models.Verdict {
	normalized := normalize(text)
	for _, term := range harmfulTerms {
		if containsTerm(normalized, term) {
			return models.VerdictHarmful
		}
	}
	if g.mode == ModeStrict {
		for _, term := range domainTerms {
			if containsTerm(normalized, term) {
				return models.VerdictInScope
			}
		}
		return models.VerdictOutOfScope
	}
	return models.VerdictInScope
}

var verdictLine = regexp.MustCompile(`(?i)^\**\s*scope\s*\**\s*:\s*\**\s*(in[ _-]?scope|out[ _-]?of[ _-]?scope|harmful)\b`)

// ParseVerdict reads the SCOPE line that opens a model reply and returns the
// verdict with the remaining body.
func ParseVerdict(reply string) (models.Verdict, string, error) {
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := verdictLine.FindStringSubmatch(line)
		if m == nil {
			return "", "", fmt.Errorf("%w: first line %q", ErrNoVerdict, truncate(line, 60))
		}
		body := strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		return verdictFromToken(m[1]), body, nil
	}
	return "", "", fmt.Errorf("%w: empty reply", ErrNoVerdict)
}

func verdictFromToken(tok string) models.Verdict {
	tok = strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, tok))
	switch tok {
	case "inscope":
		return models.VerdictInScope
	case "harmful":
		return models.VerdictHarmful
	}
	return models.VerdictOutOfScope
}

func normalize(text string) string {
	text = strings.ToLower(text)
	return " " + strings.Join(strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	}), " ") + " "
}

// containsTerm matches whole words, or word prefixes for stems such as
// "eligib" and "traffick".
func containsTerm(normalized, term string) bool {
	if strings.Contains(normalized, " "+term+" ") {
		return true
	}
	switch term {
	case "eligib", "traffick", "terror":
		return strings.Contains(normalized, " "+term)
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
