package models

import "fmt"

const (
	PreviewLength        = 200
	NoHistoryPlaceholder = "No previous conversation"
	NotFoundAnswer       = "I couldn't find relevant information in the document to answer this question."
)

// PromptTemplate is filled with {context}, {history} and {question}.
const PromptTemplate = "You are a helpful assistant that answers questions \n" +
	"        based on the provided context from a PDF document. Follow these rules:\n" +
	"\n" +
	"        1. Answer ONLY using the information from the context provided\n" +
	"        2. If the context doesn't contain relevant information, say \n" +
	"           \"" + NotFoundAnswer + "\"\n" +
	"        3. Always cite your sources using the page numbers from the context\n" +
	"        4. Be precise and concise in your answers\n" +
	"        5. For follow-up questions, maintain context from the conversation history\n" +
	"\n" +
	"        Context:\n" +
	"        {context}\n" +
	"\n" +
	"        Conversation History:\n" +
	"        {history}\n" +
	"\n" +
	"        Question: {question}\n" +
	"\n" +
	"        Please provide a helpful answer with citations:\n" +
	"        "

// SourceLabel is the human-readable label attached to every chunk
func SourceLabel(page int) string {
	return fmt.Sprintf("Page %d", page)
}
