// Package detect extracts URLs and spam-pattern signals from message text.
package detect

import "regexp"

// Signal is a spam-pattern label.
type Signal string

const (
	PrivateContact  Signal = "intento_contacto_privado"
	SelfPromotion   Signal = "autopromocion"
	ContainsLink    Signal = "contiene_enlace"
	CommercialOffer Signal = "oferta_comercial"
	SharedTool      Signal = "herramienta_compartida"
)

type rule struct {
	signal  Signal
	pattern *regexp.Regexp
}

// rules are evaluated in this order and their labels are emitted in it.
var rules = []rule{
	{
		signal:  PrivateContact,
		pattern: regexp.MustCompile(`(?i)(\b(por|al|en|v[ií]a|by|via|in|over|through)\s+(dm|md|dms|mds|privado|priv|mensaje\s+privado|private(\s+messages?)?|inbox)\b|\b(escr[ií]beme|h[aá]blame|mand[aá]me|env[ií]ame|dm\s+me|message\s+me|pm\s+me|text\s+me)\b)`),
	},
	{
		signal:  SelfPromotion,
		pattern: regexp.MustCompile(`(?i)\b(mi|mis|my)\s+(canal|perfil|instagram|insta|telegram|whatsapp|youtube|tiktok|twitch|channel|profile|page|p[aá]gina)\b`),
	},
	{
		signal:  ContainsLink,
		pattern: regexp.MustCompile(`(?i)https?://`),
	},
	{
		signal:  CommercialOffer,
		pattern: regexp.MustCompile(`(?i)\b(gratis|free|descuentos?|discounts?|ofertas?|offers?|promoci[oó]n|promociones|promos?|promotions?)\b`),
	},
	{
		signal:  SharedTool,
		pattern: regexp.MustCompile(`(?i)(\b(semrush|ahrefs|similarweb|spyfu|ubersuggest|helium\s?10|jungle\s?scout|keepa|moz|seoquake)\b|\b(comparto|compartir|compartido|compartida|compartimos|compartiendo|share|shares|shared|sharing)\b)`),
	},
}

var urlPattern = regexp.MustCompile(`(?i)https?://\S+`)

// ExtractURLs returns every http(s) URL in text in order of appearance.
// Duplicates are kept and trailing punctuation is not trimmed. The result is
// never nil.
func ExtractURLs(text string) []string {
	found := urlPattern.FindAllString(text, -1)
	if found == nil {
		return []string{}
	}
	return found
}

// DetectSpamPatterns returns the labels whose pattern matches anywhere in
// text, each at most once, in rule order. The result is never nil.
func DetectSpamPatterns(text string) []Signal {
	signals := []Signal{}
	if text == "" {
		return signals
	}
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			signals = append(signals, r.signal)
		}
	}
	return signals
}

// Strings converts signals to their label strings.
func Strings(signals []Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = string(s)
	}
	return out
}

// Report bundles the text signals the normalizer attaches to a message.
type Report struct {
	URLs     []string
	Patterns []Signal
	HasLinks bool
}

// Analyze runs both detectors over text.
func Analyze(text string) Report {
	urls := ExtractURLs(text)
	return Report{
		URLs:     urls,
		Patterns: DetectSpamPatterns(text),
		HasLinks: len(urls) > 0,
	}
}

// AllSignals lists every label in rule order.
func AllSignals() []Signal {
	out := make([]Signal, len(rules))
	for i, r := range rules {
		out[i] = r.signal
	}
	return out
}
