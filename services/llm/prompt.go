// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Prompt Templates
// -----------------------------------------------------------------------------

// Template placeholders. A custom template must contain all three.
const (
	PlaceholderChatHistory = "{chat_history}"
	PlaceholderContext     = "{context}"
	PlaceholderQuestion    = "{question}"
)

// DefaultPromptTemplate instructs the model to ground its answer in the
// retrieved context and the session history, and nothing else.
const DefaultPromptTemplate = `You are a friendly AI assistant augmented with a vector store.
To help you answer the questions, a context and/or chat history will be provided.
Answer the question at the end using only the information available in the context or chat history, either one is ok.

-------------
Chat history:
{chat_history}
-------------
Context:
{context}
-------------

Question: {question}
Helpful answer:`

// PromptTemplate renders the final model prompt from the assembled history,
// context, and question.
type PromptTemplate struct {
	text string
}

// NewPromptTemplate validates that text carries every placeholder. An empty
// text selects the default template.
func NewPromptTemplate(text string) (*PromptTemplate, error) {
	if text == "" {
		text = DefaultPromptTemplate
	}
	for _, placeholder := range []string{PlaceholderChatHistory, PlaceholderContext, PlaceholderQuestion} {
		if !strings.Contains(text, placeholder) {
			return nil, fmt.Errorf("prompt template is missing the %s placeholder", placeholder)
		}
	}
	return &PromptTemplate{text: text}, nil
}

// MustPromptTemplate is NewPromptTemplate for compile-time-constant
// templates.
func MustPromptTemplate(text string) *PromptTemplate {
	t, err := NewPromptTemplate(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Render substitutes all three placeholders. Every occurrence is replaced, so
// a template may repeat a placeholder.
func (t *PromptTemplate) Render(chatHistory, contextBlock, question string) string {
	r := strings.NewReplacer(
		PlaceholderChatHistory, chatHistory,
		PlaceholderContext, contextBlock,
		PlaceholderQuestion, question,
	)
	return r.Replace(t.text)
}
