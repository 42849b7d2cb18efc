// Package classifier maps free-text chat input to a content type so the
// router can pick a specialist model. Matching is keyword-based and
// deterministic; ambiguity is resolved by a fixed priority order.
package classifier

import (
	"regexp"
	"strings"
)

// ContentType is the detected category of a chat message
type ContentType string

const (
	TypeCode    ContentType = "code"
	TypeFile    ContentType = "file"
	TypePDF     ContentType = "pdf"
	TypeImage   ContentType = "image"
	TypeVideo   ContentType = "video"
	TypeGeneral ContentType = "general"
)

var codingKeywords = []string{
	"code", "function", "class", "programming", "debug", "error",
	"python", "javascript", "java", "c++", "rust", "go", "php",
	"html", "css", "sql", "algorithm", "api", "backend", "frontend",
	"bug", "syntax", "compile", "execute", "script", "package",
	"import", "export", "variable", "loop", "conditional", "refactor",
	"optimize code", "write code", "fix code", "review code",
	"implementation", "coding", "developer", "program",
}

var fileKeywords = []string{
	"file", "document", "upload", "large file", "csv", "json", "xml", "yaml",
}

var pdfKeywords = []string{
	"pdf", "document analysis", "extract text", "read pdf",
}

var imageKeywords = []string{
	"image", "photo", "picture", "jpeg", "png", "analyze image", "vision",
}

var videoKeywords = []string{
	"video", "mp4", "avi", "analyze video", "video processing",
}

// codePattern catches structural code even when no keyword matches
var codePattern = regexp.MustCompile(`def |class |function |import |const |var |let `)

// Detect returns the content type for a message. Categories are checked
// in priority order (code, pdf, image, video, file, structural code
// heuristics); the first match wins.
func Detect(text string) ContentType {
	lower := strings.ToLower(text)

	if containsAny(lower, codingKeywords) {
		return TypeCode
	}
	if containsAny(lower, pdfKeywords) {
		return TypePDF
	}
	if containsAny(lower, imageKeywords) {
		return TypeImage
	}
	if containsAny(lower, videoKeywords) {
		return TypeVideo
	}
	if containsAny(lower, fileKeywords) {
		return TypeFile
	}

	// Fenced code blocks or language constructs without any keyword hit
	if strings.Contains(text, "```") || codePattern.MatchString(text) {
		return TypeCode
	}

	return TypeGeneral
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
