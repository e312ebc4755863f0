package classify

import (
	"strings"

	"github.com/nhle/mailbrief/internal/model"
)

// LabelRule maps one mailbox label to a category. Low-value rules classify
// an item outright from a template; the others only steer the fallback
// category when the service cannot be used.
type LabelRule struct {
	Label    string
	Category model.Category
	LowValue bool
	Template string
}

// Summary renders the rule's template.
func (r LabelRule) Summary(sender, subject string) string {
	return strings.NewReplacer("{sender}", sender, "{subject}", subject).Replace(r.Template)
}

// labelRules is checked in order; the first match wins.
var labelRules = []LabelRule{
	{
		Label:    "CATEGORY_PROMOTIONS",
		Category: model.CategoryNewsletter,
		LowValue: true,
		Template: "Marketing email from {sender} about {subject}",
	},
	{
		Label:    "CATEGORY_UPDATES",
		Category: model.CategoryAutomated,
		LowValue: true,
		Template: "Notification from {sender}: {subject}",
	},
	{Label: "CATEGORY_SOCIAL", Category: model.CategoryAutomated},
	{Label: "CATEGORY_FORUMS", Category: model.CategoryNewsletter},
}

// MatchLowValue returns the first low-value rule whose label is present.
func MatchLowValue(labels []string) (LabelRule, bool) {
	for _, r := range labelRules {
		if r.LowValue && hasLabel(labels, r.Label) {
			return r, true
		}
	}
	return LabelRule{}, false
}

// HintCategory returns the category suggested by any rule, low-value or
// not, for use when an item has to fall back.
func HintCategory(labels []string) (model.Category, bool) {
	for _, r := range labelRules {
		if hasLabel(labels, r.Label) {
			return r.Category, true
		}
	}
	return "", false
}

// LowValueLabels lists the labels that short-circuit classification.
func LowValueLabels() []string {
	var out []string
	for _, r := range labelRules {
		if r.LowValue {
			out = append(out, r.Label)
		}
	}
	return out
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, want) {
			return true
		}
	}
	return false
}
