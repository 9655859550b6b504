// Package voice holds the static language → voice profile table.
//
// The table is built once at process start from the built-in defaults plus any
// config overrides and is read-only afterwards, so it is safely shared across
// all concurrent turns. Lookup behaviour on an unknown code is a deliberate
// configuration choice (see [MissPolicy]); the default is to reject.
package voice

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// ErrUnknownLanguage is returned by Resolve under [MissReject] when the
// requested language code has no profile.
var ErrUnknownLanguage = errors.New("voice: unknown language code")

// MissPolicy controls what Resolve does when a language code is not in the table.
type MissPolicy string

const (
	// MissReject fails the lookup with [ErrUnknownLanguage]. This is the default.
	MissReject MissPolicy = "reject"

	// MissFallback silently substitutes the default language's profile.
	MissFallback MissPolicy = "fallback"
)

// IsValid reports whether m is a recognised miss policy.
func (m MissPolicy) IsValid() bool {
	return m == MissReject || m == MissFallback
}

// DefaultLanguage is the fixed fallback language when none is configured.
const DefaultLanguage = "en"

// builtinProfiles is the shipped voice table. Voice names follow the Google
// Cloud TTS catalogue; providers that use their own fixed voices (OpenAI)
// ignore VoiceID mismatches and map by their own rules.
var builtinProfiles = []types.VoiceProfile{
	{Language: "en", Locale: "en-IN", VoiceID: "en-IN-Wavenet-D", Gender: types.GenderFemale},
	{Language: "hi", Locale: "hi-IN", VoiceID: "hi-IN-Wavenet-A", Gender: types.GenderFemale},
	{Language: "bn", Locale: "bn-IN", VoiceID: "bn-IN-Wavenet-A", Gender: types.GenderFemale},
	{Language: "ta", Locale: "ta-IN", VoiceID: "ta-IN-Wavenet-A", Gender: types.GenderFemale},
	{Language: "te", Locale: "te-IN", VoiceID: "te-IN-Standard-A", Gender: types.GenderFemale},
	{Language: "mr", Locale: "mr-IN", VoiceID: "mr-IN-Wavenet-A", Gender: types.GenderFemale},
	{Language: "gu", Locale: "gu-IN", VoiceID: "gu-IN-Wavenet-A", Gender: types.GenderFemale},
	{Language: "kn", Locale: "kn-IN", VoiceID: "kn-IN-Wavenet-A", Gender: types.GenderFemale},
	{Language: "ml", Locale: "ml-IN", VoiceID: "ml-IN-Wavenet-A", Gender: types.GenderFemale},
	{Language: "pa", Locale: "pa-IN", VoiceID: "pa-IN-Wavenet-A", Gender: types.GenderFemale},
	{Language: "fr", Locale: "fr-FR", VoiceID: "fr-FR-Wavenet-C", Gender: types.GenderFemale},
	{Language: "es", Locale: "es-ES", VoiceID: "es-ES-Wavenet-C", Gender: types.GenderFemale},
	{Language: "de", Locale: "de-DE", VoiceID: "de-DE-Wavenet-F", Gender: types.GenderFemale},
	{Language: "ja", Locale: "ja-JP", VoiceID: "ja-JP-Wavenet-B", Gender: types.GenderFemale},
}

// Table maps normalized language codes to immutable voice profiles.
// Safe for concurrent use after construction.
type Table struct {
	profiles    map[string]types.VoiceProfile
	defaultLang string
	policy      MissPolicy
}

// NewTable builds a Table from the built-in profiles merged with overrides.
// An override with a Language matching a built-in replaces it; others are added.
//
// defaultLang selects the profile used when a caller omits the language (and,
// under MissFallback, when the code is unknown). Empty means [DefaultLanguage].
// The default language must resolve to a profile, otherwise NewTable fails.
func NewTable(defaultLang string, policy MissPolicy, overrides []types.VoiceProfile) (*Table, error) {
	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}
	if policy == "" {
		policy = MissReject
	}
	if !policy.IsValid() {
		return nil, fmt.Errorf("voice: invalid miss policy %q", policy)
	}

	profiles := make(map[string]types.VoiceProfile, len(builtinProfiles)+len(overrides))
	for _, p := range builtinProfiles {
		profiles[p.Language] = p
	}
	for _, p := range overrides {
		key := Normalize(p.Language)
		if key == "" {
			return nil, fmt.Errorf("voice: override with empty language code (voice_id %q)", p.VoiceID)
		}
		p.Language = key
		profiles[key] = p
	}

	defaultLang = Normalize(defaultLang)
	if _, ok := profiles[defaultLang]; !ok {
		return nil, fmt.Errorf("voice: default language %q has no profile", defaultLang)
	}

	return &Table{
		profiles:    profiles,
		defaultLang: defaultLang,
		policy:      policy,
	}, nil
}

// Resolve returns the profile for code. An empty code resolves to the default
// profile. An unknown code either fails with [ErrUnknownLanguage] or resolves
// to the default profile, depending on the table's [MissPolicy].
func (t *Table) Resolve(code string) (types.VoiceProfile, error) {
	key := Normalize(code)
	if key == "" {
		key = t.defaultLang
	}
	if p, ok := t.profiles[key]; ok {
		return p, nil
	}
	if t.policy == MissFallback {
		return t.profiles[t.defaultLang], nil
	}
	return types.VoiceProfile{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
}

// Default returns the profile of the table's default language.
func (t *Table) Default() types.VoiceProfile {
	return t.profiles[t.defaultLang]
}

// Profiles returns all profiles sorted by language code.
func (t *Table) Profiles() []types.VoiceProfile {
	out := make([]types.VoiceProfile, 0, len(t.profiles))
	for _, p := range t.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// Normalize lowercases a language code and reduces a full BCP-47 tag to its
// primary subtag ("Hi-IN" → "hi").
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexByte(code, '-'); i > 0 {
		return code[:i]
	}
	return code
}
