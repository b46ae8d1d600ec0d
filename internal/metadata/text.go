package metadata

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxDescriptionLen caps descriptions extracted from READMEs and source comments.
const MaxDescriptionLen = 200

var (
	docBlockPattern    = regexp.MustCompile(`(?s)/\*\*(.*?)\*/`)
	phpLineComment     = regexp.MustCompile(`(?m)^<\?php\s*//\s*(.+)`)
	annotationPattern  = regexp.MustCompile(`@\w+`)
	namespacePattern   = regexp.MustCompile(`namespace\s+([^;]+);`)
	descriptionTag     = regexp.MustCompile(`(?i)@description\s+(.+)`)
	versionTag         = regexp.MustCompile(`(?i)@version\s+(.+)`)
	authorTag          = regexp.MustCompile(`(?i)@author\s+(.+)`)
	wordSeparatorChars = " \t\r\n\f\v"
)

// Beautify turns a slug into a display title: "-" and "_" become spaces and the
// first letter of every word is upper-cased. Other letters are left as they are.
func Beautify(slug string) string {
	s := strings.NewReplacer("-", " ", "_", " ").Replace(slug)

	var b strings.Builder
	b.Grow(len(s))
	upper := true
	for _, r := range s {
		if upper {
			r = unicode.ToUpper(r)
		}
		upper = strings.ContainsRune(wordSeparatorChars, r)
		b.WriteRune(r)
	}
	return b.String()
}

// DescriptionFromReadme returns the first non-empty line that follows a heading,
// skipping further headings.
func DescriptionFromReadme(content string) string {
	foundTitle := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			foundTitle = true
			continue
		}
		if foundTitle && line != "" {
			return truncate(line, MaxDescriptionLen)
		}
	}
	return ""
}

// DescriptionFromPHP returns the first line of the first /** */ block that is not
// an annotation. Without such a block it falls back to a "<?php // comment" line.
func DescriptionFromPHP(content string) string {
	if m := docBlockPattern.FindStringSubmatch(content); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.Trim(line, " \t\n\r\x00\x0B*")
			if line != "" && !strings.HasPrefix(line, "@") {
				return truncate(line, MaxDescriptionLen)
			}
		}
	}

	if m := phpLineComment.FindStringSubmatch(content); m != nil {
		return truncate(strings.TrimSpace(m[1]), MaxDescriptionLen)
	}
	return ""
}

// ClassDoc is the descriptive information found in a PHP class file.
type ClassDoc struct {
	Description string
	Version     string
	Author      string
	Namespace   string
}

// ParseClassDoc reads @description, @version and @author tags and the namespace
// declaration from a class file. Without a @description tag the first plain line
// of the first doc block is used.
func ParseClassDoc(content string) ClassDoc {
	doc := ClassDoc{
		Version:   firstGroup(versionTag, content),
		Author:    firstGroup(authorTag, content),
		Namespace: firstGroup(namespacePattern, content),
	}

	if d := firstGroup(descriptionTag, content); d != "" {
		doc.Description = d
		return doc
	}

	if m := docBlockPattern.FindStringSubmatch(content); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.Trim(line, " \t*")
			line = strings.TrimRight(line, "\r")
			if line != "" && !annotationPattern.MatchString(line) {
				doc.Description = truncate(line, MaxDescriptionLen)
				break
			}
		}
	}
	return doc
}

func firstGroup(re *regexp.Regexp, content string) string {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
