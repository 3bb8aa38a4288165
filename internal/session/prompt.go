package session

import "strings"

// systemPrompt builds the system message a new session starts with. The
// category list tells the model what the catalog can filter on; privileged
// sessions additionally learn about the administration tools.
func systemPrompt(categories []string, privileged bool) string {
	var sb strings.Builder
	sb.WriteString("You are a shopping assistant for an online store. ")
	sb.WriteString("Help users find products and understand what reviewers say about them. ")
	sb.WriteString("Use the search_product tool to find products and the ")
	sb.WriteString("get_reviews_by_embedding tool to look up review opinions. ")
	sb.WriteString("Answer concisely and only from tool results; never invent products or reviews.")

	if len(categories) > 0 {
		sb.WriteString("\n\nAvailable product categories: ")
		sb.WriteString(strings.Join(categories, ", "))
		sb.WriteString(".")
	}

	if privileged {
		sb.WriteString("\n\nThis user is an administrator. Administration tools ")
		sb.WriteString("(user management, login heatmap reports) are available on request.")
	}

	return sb.String()
}
