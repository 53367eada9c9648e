package utils

import "github.com/microcosm-cc/bluemonday"

// Post content keeps user-generated markup, including the blockquote
// element quote posts are built from. Titles are plain text and lose every
// tag.
var (
	contentPolicy = bluemonday.UGCPolicy()
	titlePolicy   = bluemonday.StrictPolicy()
)

// Sanitize cleans post and comment bodies, stripping anything outside the
// allowed user-generated markup.
func Sanitize(input string) string {
	return contentPolicy.Sanitize(input)
}

// SanitizeTitle strips all markup from a title.
func SanitizeTitle(input string) string {
	return titlePolicy.Sanitize(input)
}
