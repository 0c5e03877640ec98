package ingestion

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/harvestd/internal/models"
)

// wikiLinkPattern matches inline mentions such as [id123|Ivan] or [club42|Group]
var wikiLinkPattern = regexp.MustCompile(`\[(?:id|club|public|event)\d+\|([^\]]*)\]`)

// normalizeText converts upstream markup into plain text: <br> becomes a newline,
// remaining tags are dropped, entities are decoded and mentions keep only their label.
func normalizeText(text string) string {
	if text == "" {
		return ""
	}

	if strings.ContainsAny(text, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err == nil {
			doc.Find("br").ReplaceWithHtml("\n")
			text = doc.Text()
		}
	}

	text = wikiLinkPattern.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// normalizePost cleans a post in place and fills the author name of group-authored posts
func normalizePost(group *models.MonitoredGroup, post *models.Post) {
	post.Text = normalizeText(post.Text)
	if post.AuthorName == "" && post.AuthorID == "-"+strings.TrimPrefix(group.ExternalID, "-") {
		post.AuthorName = group.Name
	}
}

// normalizeComment cleans a comment in place and resolves its author from side profiles
func normalizeComment(comment *models.Comment, profiles map[string]*models.Profile) {
	comment.Text = normalizeText(comment.Text)
	if comment.AuthorName != "" {
		return
	}
	if p, ok := profiles[comment.AuthorID]; ok && p != nil {
		comment.AuthorName = p.DisplayName
	}
}
