package llm

import (
	"fmt"

	"github.com/lepinkainen/feed-brief/internal/lang"
)

func summaryPrompt(feedText string, language lang.Language) string {
	info := language.Info()
	return fmt.Sprintf(`You are an expert news analyst. Analyze the provided RSS feed content. For each article, extract the title, URL, and a relevant image URL (look for 'enclosure', 'media:content', or an 'img' tag in the description). Then, write a concise, unbiased summary of about 2-3 sentences in %[1]s. Also, assign a single, relevant category name for each article in %[1]s (e.g., 'Technology', 'Politics', 'Business', 'Science').
The final output must be a JSON array of articles. Each object in the array must have 'title', 'summary', 'url', 'category', and 'imageUrl' keys. If no image is found, the value for 'imageUrl' should be null.
Write every summary and category in %[1]s (%[2]s).

RSS content is below:
%[3]s
`, info.Name, info.NativeName, Truncate(feedText, MaxInputLength))
}

func chatInstruction(language lang.Language) string {
	return fmt.Sprintf(`You are a helpful and friendly news assistant. Your knowledge is strictly limited to the news articles provided in the context.
- Answer user questions based *only* on the information in the articles.
- Do not make up information or answer questions about topics not covered in the articles.
- If you don't know the answer, say that the information is not available in the provided articles.
- Keep your answers concise and to the point.
- All your responses must be in %s.`, language.Info().Name)
}

func chatAcknowledgement(language lang.Language) string {
	return fmt.Sprintf("Understood. I have read the provided articles and will only answer questions based on their content. I will respond in %s.", language.Info().Name)
}

func translationPrompt(tableJSON string, from, to lang.Language) string {
	return fmt.Sprintf(`Translate the string values in the following JSON object from %s to %s.
- Maintain the exact same JSON keys.
- Only translate the string values.
- Do not translate placeholders like '{variable}'; keep every one of them.
- Keep '**' bold markers around the same words.
- Provide only the raw JSON in your response.

JSON to translate:
%s
`, from.Info().Name, to.Info().Name, tableJSON)
}
