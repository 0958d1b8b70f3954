package config

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/nao1215/docmirror/internal/render"
)

// Profile is a named, reusable crawl setup. Pointer fields distinguish
// "not set" from an explicit zero or false.
type Profile struct {
	// Description is shown by "docmirror init" and in logs.
	Description string `yaml:"description,omitempty"`

	// Seeds are the crawl start URLs.
	Seeds []string `yaml:"seeds,omitempty"`

	// SeedURL is the page URL assumed for saved pages without a
	// "saved from" comment.
	SeedURL string `yaml:"seedUrl,omitempty"`

	// AllowHostSuffixes lists the hosts (and subdomains) that may be fetched.
	AllowHostSuffixes []string `yaml:"allowHostSuffixes,omitempty"`

	FollowOffsite *bool          `yaml:"followOffsite,omitempty"`
	RespectRobots *bool          `yaml:"respectRobots,omitempty"`
	MaxPages      *int           `yaml:"maxPages,omitempty"`
	MaxDepth      *int           `yaml:"maxDepth,omitempty"`
	PerHostDelay  *time.Duration `yaml:"perHostDelay,omitempty"`
	UserAgent     string         `yaml:"userAgent,omitempty"`

	// Cookie is an HTTP cookie sent with every request.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are URL path globs never followed.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, restrict followed links to matching paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// Endpoint selects the URLs rendered as API endpoint responses.
	Endpoint *render.EndpointRule `yaml:"endpoint,omitempty"`

	// Citations lists the citation formats written after a crawl.
	Citations []string `yaml:"citations,omitempty"`
}

// File represents the structure of the .docmirror.yaml configuration file.
type File struct {
	// Defaults apply to every run, before any profile.
	Defaults Profile `yaml:"defaults,omitempty"`

	// Profiles maps profile names to their settings. A profile with the
	// name of a built-in profile overrides it field by field.
	Profiles map[string]Profile `yaml:"profiles,omitempty"`
}

// Profile returns the defaults merged with the built-in and file profile
// called name. An empty name returns the defaults alone.
func (f *File) Profile(name string) (Profile, error) {
	result := f.Defaults
	if name == "" {
		return result, nil
	}

	builtin, isBuiltin := BuiltinProfiles()[name]
	custom, isCustom := f.Profiles[name]
	if !isBuiltin && !isCustom {
		return Profile{}, &ProfileNotFoundError{Name: name, Known: f.ProfileNames()}
	}
	if isBuiltin {
		result = mergeProfile(result, builtin)
	}
	if isCustom {
		result = mergeProfile(result, custom)
	}
	return result, nil
}

// ProfileNames returns the built-in and file profile names, sorted.
func (f *File) ProfileNames() []string {
	names := slices.Collect(maps.Keys(BuiltinProfiles()))
	for name := range f.Profiles {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// mergeProfile merges override into base; set fields of override win and
// headers are merged key by key.
func mergeProfile(base, override Profile) Profile {
	result := base

	if override.Description != "" {
		result.Description = override.Description
	}
	if len(override.Seeds) > 0 {
		result.Seeds = override.Seeds
	}
	if override.SeedURL != "" {
		result.SeedURL = override.SeedURL
	}
	if len(override.AllowHostSuffixes) > 0 {
		result.AllowHostSuffixes = override.AllowHostSuffixes
	}
	if override.FollowOffsite != nil {
		result.FollowOffsite = override.FollowOffsite
	}
	if override.RespectRobots != nil {
		result.RespectRobots = override.RespectRobots
	}
	if override.MaxPages != nil {
		result.MaxPages = override.MaxPages
	}
	if override.MaxDepth != nil {
		result.MaxDepth = override.MaxDepth
	}
	if override.PerHostDelay != nil {
		result.PerHostDelay = override.PerHostDelay
	}
	if override.UserAgent != "" {
		result.UserAgent = override.UserAgent
	}
	if override.Cookie != "" {
		result.Cookie = override.Cookie
	}
	if len(override.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(override.Headers))
		maps.Copy(merged, result.Headers)
		maps.Copy(merged, override.Headers)
		result.Headers = merged
	}
	if len(override.IgnorePatterns) > 0 {
		result.IgnorePatterns = override.IgnorePatterns
	}
	if len(override.FollowPatterns) > 0 {
		result.FollowPatterns = override.FollowPatterns
	}
	if override.Endpoint != nil {
		result.Endpoint = override.Endpoint
	}
	if len(override.Citations) > 0 {
		result.Citations = override.Citations
	}
	return result
}

// Names of the built-in profiles.
const (
	ProfileUSPTOData = "uspto-data"
	ProfileEndNote25 = "endnote25"
)

// EndNote25SeedURL is the first topic of the EndNote 2025 Windows help.
const EndNote25SeedURL = "https://docs.endnote.com/docs/endnote/2025/v1/windows/en/" +
	"content/00endnote_libraries/00endnote_libraries_and_references.htm"

// BuiltinProfiles returns the profiles shipped with docmirror.
// A fresh map is returned on every call.
func BuiltinProfiles() map[string]Profile {
	uspto := render.DefaultEndpointRule
	return map[string]Profile{
		ProfileUSPTOData: {
			Description:       "USPTO Open Data Portal documentation and API pages",
			Seeds:             []string{"https://data.uspto.gov/", "https://data.uspto.gov/apis/"},
			SeedURL:           "https://data.uspto.gov/",
			AllowHostSuffixes: []string{"uspto.gov"},
			Endpoint:          &uspto,
		},
		ProfileEndNote25: {
			Description:       "EndNote 2025 for Windows online help",
			Seeds:             []string{EndNote25SeedURL},
			SeedURL:           EndNote25SeedURL,
			AllowHostSuffixes: []string{"docs.endnote.com"},
			FollowPatterns:    []string{"/docs/endnote/2025/v1/windows/*"},
			Citations:         []string{"ris"},
		},
	}
}
