package model

import (
	"github.com/feichai0017/vision-ocr/internal/models"
)

var prompts = map[models.FormatType]string{
	models.FormatMarkdown: `Please look at this image and extract all the text content. Format the output in markdown:
- Use headers (# ## ###) for titles and sections
- Use bullet points (-) for lists
- Use proper markdown formatting for emphasis and structure
- Preserve the original text hierarchy and formatting as much as possible`,

	models.FormatText: `Please look at this image and extract all the text content.
Provide the output as plain text, maintaining the original layout and line breaks where appropriate.
Include all visible text from the image.`,

	models.FormatJSON: `Please look at this image and extract all the text content. Structure the output as JSON with these guidelines:
- Identify different sections or components
- Use appropriate keys for different text elements
- Maintain the hierarchical structure of the content
- Include all visible text from the image
Respond with the JSON document only.`,

	models.FormatStructured: `Please look at this image and extract all the text content, focusing on structural elements:
- Identify and format any tables as markdown pipe tables
- Extract lists and maintain their structure
- Preserve any hierarchical relationships
- Format sections and subsections clearly with markdown headings`,

	models.FormatKeyValue: `Please look at this image and extract text that appears in key-value pairs:
- Look for labels and their associated values
- Extract form fields and their contents
- Identify any paired information
- Present each pair on a new line as 'key: value'`,
}

// PromptFor returns the template for format. Unknown formats have no prompt.
func PromptFor(format models.FormatType) (string, bool) {
	p, ok := prompts[format]
	return p, ok
}
