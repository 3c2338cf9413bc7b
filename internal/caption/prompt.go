package caption

// Prompt is sent with every image. Captions are embedded for retrieval, so
// they should describe content rather than style.
const Prompt = `Describe this image in one short sentence for a search index.

Rules:
- State what the image shows: objects, people, charts, diagrams, tables
- If it is a chart or diagram, name what it measures or depicts
- Do not speculate about anything not visible
- Do not start with "This image" or "The image"

Respond with ONLY the sentence, no other text.`
