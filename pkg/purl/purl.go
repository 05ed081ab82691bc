// Package purl decodes the package URLs attached to scanner findings.
package purl

import (
	"net/url"
	"strings"

	"github.com/package-url/packageurl-go"
)

// PackageType tells OS packages apart from language libraries.
type PackageType string

const (
	OS      PackageType = "OS"
	Library PackageType = "LIBRARY"
)

// UnknownName is substituted for the package name of an undecodable purl.
const UnknownName = "UNKNOWN"

// purl types maintained by an OS package manager
var osTypes = map[string]bool{
	"deb":    true,
	"apk":    true,
	"rpm":    true,
	"alpine": true,
	"ubuntu": true,
}

// Decode extracts the package name and version from a purl such as
// "pkg:deb/debian/curl@7.88.1-10%2Bdeb12u5?arch=amd64". The string is
// percent-decoded, the qualifiers are dropped and the last path segment is
// split on its final '@'. Anything that does not fit yields UnknownName and
// a nil version.
func Decode(s string) (string, *string) {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return UnknownName, nil
	}

	main, _, _ := strings.Cut(decoded, "?")
	segment := main[strings.LastIndex(main, "/")+1:]

	at := strings.LastIndex(segment, "@")
	if at <= 0 {
		return UnknownName, nil
	}

	name, version := segment[:at], segment[at+1:]
	return name, &version
}

// Classify reports whether the purl names an OS package.
func Classify(s string) PackageType {
	if p, err := packageurl.FromString(s); err == nil {
		if osTypes[strings.ToLower(p.Type)] {
			return OS
		}
		return Library
	}

	lower := strings.ToLower(s)
	for t := range osTypes {
		if strings.HasPrefix(lower, "pkg:"+t+"/") {
			return OS
		}
	}
	return Library
}
