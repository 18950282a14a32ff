// Package e2e exercises the full engine: adapters, pipeline, syncer,
// indexes, and retrieval wired together the way the binary wires them.
package e2e

import (
	"fmt"
	"strings"
)

// Entry is one corpus document. Name doubles as the record title so query
// cases can assert which entry a result came from.
type Entry struct {
	Name    string
	Title   string
	Content string
}

// QueryCase defines a query and the entries that must appear in the
// results. At least one ExpectedNames member must be present.
type QueryCase struct {
	Query         string
	ExpectedNames []string
	Description   string
}

// Corpus holds entries and query cases for the end-to-end tests.
type Corpus struct {
	Entries []Entry
	Cases   []QueryCase
}

// BuildCorpus returns a corpus of distinct documents, each carrying a unique
// signature phrase, plus query cases targeting those phrases. Contents are
// pairwise distinct so note ingestion never collapses two entries into one
// content-hash identity.
func BuildCorpus() *Corpus {
	entries := buildEntries()
	return &Corpus{
		Entries: entries,
		Cases:   buildQueryCases(entries),
	}
}

func buildEntries() []Entry {
	topics := []struct {
		title   string
		content string
	}{
		{"Python Guide", "Python is a high-level programming language. Python programming language is used for web development and data science."},
		{"Kubernetes Docs", "Kubernetes is an open-source container orchestration platform. Kubernetes container orchestration automates deployment and scaling."},
		{"React Tutorial", "React is a JavaScript library. React hooks and components enable building user interfaces."},
		{"Go Language", "Go is a statically typed language. Go golang concurrency is achieved with goroutines and channels."},
		{"PostgreSQL Manual", "PostgreSQL is an advanced relational database. PostgreSQL relational database supports JSON and full-text search."},
		{"Docker Handbook", "Docker enables building and shipping applications. Docker container images are portable across environments."},
		{"Machine Learning", "Machine learning is a subset of AI. Machine learning algorithms learn patterns from data."},
		{"Neural Networks", "Neural networks are inspired by the brain. Neural network deep learning powers modern AI."},
		{"REST API Design", "REST is an architectural style for APIs. REST API endpoints use HTTP methods and status codes."},
		{"GraphQL Overview", "GraphQL is a query language for APIs. GraphQL query language lets clients request exactly what they need."},
		{"TypeScript Handbook", "TypeScript adds static types to JavaScript. TypeScript type system catches errors at compile time."},
		{"Redis Cache", "Redis is an in-memory data store. Redis in-memory cache is used for sessions and caching."},
		{"Semantic Search", "Semantic search uses meaning not just keywords. Semantic search embeddings capture context."},
		{"Keyword Search", "Keyword search matches terms. Keyword search full-text uses inverted indexes."},
		{"Hybrid Search", "Hybrid combines keyword and semantic relevance. Hybrid search fusion improves recall."},
		{"Vector Database", "Vector databases store embeddings. Vector database similarity uses cosine or dot product."},
		{"Embedding Models", "Embeddings represent text as vectors. Embedding models sentence transform text to dense vectors."},
		{"Chunking Strategy", "Chunking splits long documents. Chunking strategy overlap preserves context."},
		{"RAG Overview", "RAG combines retrieval and generation. RAG retrieval augmented grounds language models in documents."},
		{"Prompt Engineering", "Prompts guide model behavior. Prompt engineering few-shot uses examples in the prompt."},
		{"Message Queue", "Message queues decouple producers and consumers. Message queue asynchronous enables scaling."},
		{"Rate Limiting", "Rate limiting protects APIs. Rate limiting throttling can be per-user or global."},
		{"Circuit Breaker", "Circuit breaker stops cascading failures. Circuit breaker resilience pattern fails fast."},
		{"Distributed Tracing", "Tracing follows requests across services. Distributed tracing spans show latency breakdown."},
		{"Password Hashing", "Passwords must be hashed. Password hashing bcrypt is resistant to rainbow tables."},
		{"Backup Strategy", "Backups protect against data loss. Backup strategy recovery includes RTO and RPO."},
		{"Graph Database", "Graph databases store nodes and edges. Graph database Neo4j is used for relationships."},
		{"Time-Series DB", "Time-series databases optimize for metrics. Time-series database stores values by timestamp."},
		{"CAP Theorem", "CAP says you cannot have all three. CAP theorem consistency availability partition tolerance."},
		{"ACID Transactions", "ACID guarantees reliability. ACID transactions database ensure atomicity and isolation."},
		{"Zero Trust", "Zero trust assumes breach. Zero trust security verifies every request."},
		{"Penetration Testing", "Pentest simulates attacks. Penetration testing pentest finds vulnerabilities."},
		{"Incident Response", "Incidents need a clear process. Incident response runbook defines steps."},
		{"Chaos Engineering", "Chaos engineering tests resilience. Chaos engineering resilience uses fault injection."},
		{"Canary Release", "Canary rolls out to a subset. Canary release gradual reduces blast radius."},
		{"Refactoring", "Refactoring improves structure. Refactoring code quality preserves behavior."},
		{"Performance Profiling", "Profiling finds bottlenecks. Performance profiling uses CPU and memory tools."},
		{"Deadlock Detection", "Deadlocks freeze systems. Deadlock detection concurrency requires care with locks."},
		{"Graceful Shutdown", "Graceful shutdown drains connections. Graceful shutdown signal handles SIGTERM."},
		{"Secrets Management", "Secrets must not be in code. Secrets management vault encrypts and audits."},
		{"Service Mesh", "Service mesh manages service-to-service traffic. Service mesh Istio provides mTLS and observability."},
		{"Database Migration", "Migrations evolve schema. Database migration schema should be reversible when possible."},
		{"Observability", "Observability is metrics logs traces. Observability metrics logs help debug production."},
		{"Load Test", "Load tests simulate traffic. Load test performance finds limits."},
		{"Fuzz Testing", "Fuzz testing uses random input. Fuzz testing random finds edge cases."},
		{"Property-Based Testing", "Property-based tests generate inputs. Property-based testing verifies invariants."},
		{"Feature Flags", "Feature flags toggle functionality. Feature flags rollout allows gradual release."},
		{"Blue-Green Deployment", "Blue-green reduces deployment risk. Blue-green deployment keeps two environments."},
	}

	entries := make([]Entry, len(topics))
	for i, tp := range topics {
		entries[i] = Entry{
			Name:    fmt.Sprintf("corpus-%03d", i+1),
			Title:   tp.title,
			Content: tp.content,
		}
	}
	return entries
}

// buildQueryCases pairs each signature phrase with the first entry that
// contains it.
func buildQueryCases(entries []Entry) []QueryCase {
	phrases := []string{
		"Python programming", "Kubernetes container", "React hooks", "Go golang",
		"PostgreSQL relational", "Docker container", "machine learning algorithms",
		"neural network", "REST API", "GraphQL query", "TypeScript type",
		"Redis in-memory", "semantic search embeddings", "keyword search full-text",
		"hybrid search fusion", "vector database similarity", "embedding models",
		"chunking strategy overlap", "RAG retrieval augmented", "prompt engineering",
		"message queue", "rate limiting", "circuit breaker", "distributed tracing",
		"password hashing", "backup strategy", "graph database", "time-series database",
		"CAP theorem", "ACID transactions", "zero trust", "penetration testing",
		"incident response", "chaos engineering", "canary release", "refactoring",
		"performance profiling", "deadlock detection", "graceful shutdown",
		"secrets management", "service mesh", "database migration",
		"observability metrics", "load test", "fuzz testing", "property-based testing",
		"feature flags", "blue-green deployment",
	}

	used := make(map[string]bool, len(entries))
	cases := make([]QueryCase, 0, len(phrases))
	for _, p := range phrases {
		for _, e := range entries {
			if !used[e.Name] && containsPhrase(e, p) {
				cases = append(cases, QueryCase{
					Query:         p,
					ExpectedNames: []string{e.Name},
					Description:   fmt.Sprintf("query %q finds %s", p, e.Name),
				})
				used[e.Name] = true
				break
			}
		}
	}
	return cases
}

// containsPhrase reports whether the phrase appears in the entry's title or
// content, ignoring case.
func containsPhrase(e Entry, phrase string) bool {
	p := strings.ToLower(phrase)
	return strings.Contains(strings.ToLower(e.Title), p) ||
		strings.Contains(strings.ToLower(e.Content), p)
}
