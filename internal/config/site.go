package config

import "maps"

// SiteConfig holds settings for one host. Headers and the cookie are sent
// with every request to that host; the patterns shape the crawl.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global max depth when the site is scanned.
	// Zero keeps the global value.
	Depth int `yaml:"depth,omitempty"`

	// IgnorePatterns are URL path patterns never validated or crawled.
	// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict crawling to matching URL paths. Links on other
	// paths are still validated.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .brokenlink.yaml configuration file.
type File struct {
	// Sites maps hosts (e.g., "example.com" or "localhost:8080") to their
	// configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host, merged over the
// defaults. The returned headers map is never shared with cf.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}
