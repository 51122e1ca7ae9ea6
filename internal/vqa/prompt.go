package vqa

import (
	"bytes"
	"encoding/json"

	"github.com/lehigh-university-libraries/vqaset/internal/batch"
)

const promptHeader = `You are generating training data for a Visual Question Answering (VQA) model.

You receive:
- A product image
- Product metadata (brand, style, color, features, description, ...)

Write diverse, meaningful questions that need the image to be answered and that can use the metadata as supporting context. Paraphrase or infer rather than copying metadata text into answers. Vary question types and phrasing so the questions do not read like a template.

Guidelines:
- Generate 2 to 3 questions for the image.
- Every question must be answerable from the image, optionally helped by the metadata.
- Answers must be short and specific (1 word max).
- Mix question types where the image allows it: descriptive, counting, comparative, color recognition, function-based, reasoning-based.
- Increase complexity and reasoning from the first question to the last.

Output format (strict JSON):
{
  "image_id": "IMAGE_ID_HERE",
  "questions": [
    {
      "question": "QUESTION TEXT HERE",
      "answer": "ANSWER HERE"
    }
  ]
}

Product Metadata:
`

// BuildPrompt returns the instructions followed by the entry's metadata as indented JSON
func BuildPrompt(entry batch.Entry) string {
	var meta bytes.Buffer
	if len(entry.Raw) == 0 || json.Indent(&meta, entry.Raw, "", "  ") != nil {
		meta.Reset()
		data, _ := json.MarshalIndent(entry.Record, "", "  ")
		meta.Write(data)
	}
	return promptHeader + meta.String()
}
