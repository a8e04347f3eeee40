package models

const (
	NoDocumentMessage   = "Please, add an Excel document first."
	UploadedMessage     = "File uploaded successfully."
	ClearedMessage      = "Chatbot cleared."
	MissingInputMessage = "Please upload an Excel file and enter a query."
	IngestErrorPrefix   = "Error during ingestion"
	QueryErrorPrefix    = "Error during querying"
	SourceSeparator     = "\n"
	ContextSeparator    = "\n\n"
)

// metadata keys stored with every chunk
const (
	MetaSource = "source"
	MetaRow    = "row"
)

var (
	// AnswerPromptTemplate is rendered with the retrieved context and the user question.
	AnswerPromptTemplate = `<s> [INST] You are an assistant for answering questions. Use the following context to answer the question.
If you don't know the answer, just say you don't know. Use a maximum of three sentences and be concise in your response. [/INST] </s>
[INST] Question: {{.question}}
Context: {{.context}}
Answer: [/INST]
`
)
