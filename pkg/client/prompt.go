package client

import "strings"

// layoutPrompt is the instruction sent with the cropped image.
const layoutPrompt = `You are a social media cover designer.

The attached photo will become a cover with the title "{{title}}".
The photo uses the "{{filter}}" filter style.

Return JSON only:
{
  "subtitle": "short catchy subtitle, at most 8 words, same language as the title",
  "textColor": "#RRGGBB",
  "shadowColor": "#RRGGBB",
  "position": "top | bottom | center | split",
  "fontStyle": "bold | serif | handwritten | modern",
  "titleBackgroundColor": "#RRGGBB or transparent",
  "veoPrompt": "one sentence describing subtle camera and subject motion for a short video"
}

HARD RULES
- Place the text where it does not cover the main subject.
- textColor and shadowColor must contrast strongly with each other.
- Use "transparent" for titleBackgroundColor unless a solid block improves legibility.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// LayoutPrompt fills the layout instruction for a title and filter label.
func LayoutPrompt(title, filterLabel string) string {
	if filterLabel == "" {
		filterLabel = "Original"
	}
	r := strings.NewReplacer(
		"{{title}}", strings.ReplaceAll(title, `"`, `'`),
		"{{filter}}", filterLabel,
	)
	return r.Replace(layoutPrompt)
}
