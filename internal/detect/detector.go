// Package detect implements the short-text language classifier (§4.2 of the
// specification): a statistical classifier wrapped so that detection errors
// never propagate — callers always get back a best-effort code, defaulting
// to "en" under any uncertainty.
package detect

import (
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/pemistahl/lingua-go"
)

// FallbackLanguage is returned whenever the classifier is uncertain, the
// input is empty after cleaning, or detection itself fails internally.
const FallbackLanguage = "en"

var whitespaceRun = regexp.MustCompile(`\s+`)

// Detector classifies short text to a canonical language code. It never
// returns an error: DetectionFailure (spec.md §7) is absorbed internally and
// surfaced as FallbackLanguage.
type Detector struct {
	classifier lingua.LanguageDetector
	logger     *log.Entry
}

// Option customizes Detector construction.
type Option func(*Detector)

// WithLogger attaches a structured logger; defaults to the package-level
// standard logger under the "detect" component field.
func WithLogger(entry *log.Entry) Option {
	return func(d *Detector) { d.logger = entry }
}

// New builds a Detector preloaded with the given languages. Passing no
// languages preloads lingua-go's full bundled set.
func New(languages []lingua.Language, opts ...Option) *Detector {
	unconfigured := lingua.NewLanguageDetectorBuilder()
	var builder lingua.LanguageDetectorBuilder
	if len(languages) > 0 {
		builder = unconfigured.FromLanguages(languages...)
	} else {
		builder = unconfigured.FromAllLanguages()
	}
	d := &Detector{
		classifier: builder.WithPreloadedLanguageModels().Build(),
		logger:     log.WithField("component", "detect"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect classifies text to a canonical language code, or FallbackLanguage
// when uncertain. Input is clamped per spec.md §4.2: whitespace runs are
// collapsed, and an empty cleaned string short-circuits to the fallback
// without invoking the classifier.
func (d *Detector) Detect(text string) string {
	cleaned := clean(text)
	if cleaned == "" {
		return FallbackLanguage
	}

	lang, exists := d.safeDetect(cleaned)
	if !exists {
		d.logger.WithField("text_length", len(cleaned)).Debug("no confident language match, defaulting to en")
		return FallbackLanguage
	}

	if code := lang.IsoCode639_1().String(); code != "" {
		return strings.ToLower(code)
	}
	if alpha3 := lang.IsoCode639_3().String(); alpha3 != "" {
		if code, ok := alpha3Rewrite[strings.ToUpper(alpha3)]; ok {
			return code
		}
	}
	return FallbackLanguage
}

// safeDetect guards against a panic inside the classifier corrupting the
// caller; DetectionFailure must never propagate (spec.md §7).
func (d *Detector) safeDetect(cleaned string) (lang lingua.Language, exists bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", r).Warn("language classifier panicked, defaulting to en")
			exists = false
		}
	}()
	return d.classifier.DetectLanguageOf(cleaned)
}

func clean(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
