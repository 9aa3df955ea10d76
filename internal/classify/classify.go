// Package classify maps an uploaded file name to a document category.
package classify

import (
	"path/filepath"
	"strings"

	"docvault/internal/model"
)

type rule struct {
	category model.Category
	keywords []string
}

// rules are checked in order; the first rule with a matching keyword wins.
// Only PDF files are inspected.
var rules = []rule{
	{model.CategoryTranscript, []string{"成绩单", "成绩", "transcript"}},
	{model.CategoryCertificate, []string{"证明", "证书", "certificate"}},
	{model.CategoryGraduation, []string{"毕业", "学位", "graduation", "diploma"}},
	{model.CategoryAward, []string{"奖", "荣誉", "award", "honor"}},
}

var pdfExtensions = map[string]bool{
	".pdf": true,
}

// Classify returns the category for fileName. Non-PDF files and PDFs without a
// known keyword are CategoryOther.
func Classify(fileName string) model.Category {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !pdfExtensions[ext] {
		return model.CategoryOther
	}
	name := strings.ToLower(strings.TrimSuffix(fileName, filepath.Ext(fileName)))
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(name, kw) {
				return r.category
			}
		}
	}
	return model.CategoryOther
}
