// Package knowledge stores analysis patterns and code examples in SQLite and
// retrieves them with hybrid keyword plus vector search for the
// search_knowledge_base tool.
package knowledge
