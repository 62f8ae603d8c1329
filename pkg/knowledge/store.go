package knowledge

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Snippet is one knowledge base entry: an analysis pattern or worked code
// example the model can retrieve during a step.
type Snippet struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

// SearchResult is a snippet with its relevance score.
type SearchResult struct {
	Snippet
	Score        float64  `json:"score"`
	VectorScore  *float64 `json:"vector_score,omitempty"`
	KeywordScore *float64 `json:"keyword_score,omitempty"`
}

// SearchOptions configures search behavior
type SearchOptions struct {
	Limit         int     `json:"limit"`
	VectorWeight  float64 `json:"vector_weight"`
	KeywordWeight float64 `json:"keyword_weight"`
}

// Store indexes snippets in SQLite with hybrid retrieval: FTS5 keyword
// search plus vector similarity when an embedding provider is configured.
type Store struct {
	db       *sql.DB
	logger   zerolog.Logger
	embedder EmbeddingProvider
	topK     int
	mu       sync.RWMutex
}

// Config holds knowledge store configuration
type Config struct {
	DBPath   string
	Logger   zerolog.Logger
	Embedder EmbeddingProvider // optional; nil disables vector search
	TopK     int
}

// NewStore opens the snippet database, creating the schema on first use.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:       db,
		logger:   cfg.Logger.With().Str("component", "knowledge-store").Logger(),
		embedder: cfg.Embedder,
		topK:     cfg.TopK,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snippets (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_category ON snippets(category);

		CREATE VIRTUAL TABLE IF NOT EXISTS snippets_fts USING fts5(
			snippet_id UNINDEXED,
			title,
			content,
			tokenize='porter unicode61'
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if s.embedder != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS snippet_embeddings USING vec0(
				snippet_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, s.embedder.Dimension())

		if _, err := s.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add indexes one snippet, replacing any previous entry with the same id.
// Re-adding unchanged content skips re-embedding.
func (s *Store) Add(ctx context.Context, snippet Snippet) error {
	if snippet.ID == "" || snippet.Content == "" {
		return errors.New("snippet id and content are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := contentHash(snippet.Content)

	var existingHash string
	err := s.db.QueryRowContext(ctx, "SELECT content_hash FROM snippets WHERE id = ?", snippet.ID).Scan(&existingHash)
	if err == nil && existingHash == hash {
		return nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snippets (id, title, category, content, content_hash, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snippet.ID, snippet.Title, snippet.Category, snippet.Content, hash, time.Now().Unix(),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM snippets_fts WHERE snippet_id = ?", snippet.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snippets_fts (snippet_id, title, content) VALUES (?, ?, ?)",
		snippet.ID, snippet.Title, snippet.Content,
	); err != nil {
		return err
	}

	if s.embedder != nil {
		embedding, err := s.embedder.GenerateEmbedding(ctx, snippet.Title+"\n"+snippet.Content)
		if err != nil {
			return fmt.Errorf("failed to embed snippet %s: %w", snippet.ID, err)
		}
		embeddingJSON, err := json.Marshal(embedding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM snippet_embeddings WHERE snippet_id = ?", snippet.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO snippet_embeddings (snippet_id, embedding) VALUES (?, ?)",
			snippet.ID, string(embeddingJSON),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AddBatch indexes snippets one by one, stopping at the first failure.
func (s *Store) AddBatch(ctx context.Context, snippets []Snippet) error {
	for _, snippet := range snippets {
		if err := s.Add(ctx, snippet); err != nil {
			return err
		}
	}
	return nil
}

// Count reports the number of indexed snippets.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snippets").Scan(&n)
	return n, err
}

// Search performs hybrid retrieval over the snippet index. When both search
// legs fail the error is surfaced; a single failing leg degrades gracefully.
func (s *Store) Search(ctx context.Context, query string, opts *SearchOptions) ([]SearchResult, error) {
	if query == "" {
		return []SearchResult{}, nil
	}

	if opts == nil {
		opts = &SearchOptions{
			Limit:         s.topK,
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
		}
	}
	if opts.Limit <= 0 {
		opts.Limit = s.topK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var vectorResults []scoredID
	var keywordResults []scoredID
	var vectorErr, keywordErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if s.embedder != nil {
			vectorResults, vectorErr = s.vectorSearch(ctx, query, 50)
		}
	}()

	go func() {
		defer wg.Done()
		keywordResults, keywordErr = s.keywordSearch(ctx, query, 50)
	}()

	wg.Wait()

	if vectorErr != nil {
		s.logger.Warn().Err(vectorErr).Msg("Vector search failed, using keyword only")
	}
	if keywordErr != nil {
		s.logger.Warn().Err(keywordErr).Msg("Keyword search failed, using vector only")
	}
	if vectorErr != nil && keywordErr != nil {
		return nil, fmt.Errorf("both search methods failed")
	}

	merged := mergeResults(vectorResults, keywordResults, opts)
	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}

	return s.hydrate(ctx, merged)
}

// SearchFormatted renders search results for the model, one snippet per
// section. It satisfies the tool invoker's searcher interface.
func (s *Store) SearchFormatted(ctx context.Context, query string) (string, error) {
	results, err := s.Search(ctx, query, nil)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s (%s)\n%s", r.Title, r.Category, r.Content)
	}
	return b.String(), nil
}

type scoredID struct {
	id    string
	score float64
}

func (s *Store) vectorSearch(ctx context.Context, query string, limit int) ([]scoredID, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT snippet_id, vec_distance_cosine(embedding, ?) as distance
		FROM snippet_embeddings
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []scoredID
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		results = append(results, scoredID{id: id, score: 1.0 - distance})
	}
	return results, rows.Err()
}

func (s *Store) keywordSearch(ctx context.Context, query string, limit int) ([]scoredID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snippet_id, bm25(snippets_fts) as score
		FROM snippets_fts
		WHERE snippets_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, ftsQuery(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []scoredID
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		// BM25 scores are negative, convert to positive
		results = append(results, scoredID{id: id, score: -score})
	}
	return results, rows.Err()
}

// ftsQuery quotes each term so punctuation in natural language queries does
// not break FTS5 syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, "")
		if term != "" {
			quoted = append(quoted, `"`+term+`"`)
		}
	}
	return strings.Join(quoted, " OR ")
}

// mergeResults combines the two legs with normalized weighted scores.
func mergeResults(vectorResults, keywordResults []scoredID, opts *SearchOptions) []SearchResult {
	var maxVector, maxKeyword float64
	for _, r := range vectorResults {
		if r.score > maxVector {
			maxVector = r.score
		}
	}
	for _, r := range keywordResults {
		if r.score > maxKeyword {
			maxKeyword = r.score
		}
	}

	combined := make(map[string]*SearchResult)
	for _, r := range vectorResults {
		score := r.score
		if maxVector > 0 {
			score /= maxVector
		}
		v := score
		combined[r.id] = &SearchResult{
			Snippet:     Snippet{ID: r.id},
			Score:       score * opts.VectorWeight,
			VectorScore: &v,
		}
	}
	for _, r := range keywordResults {
		score := r.score
		if maxKeyword > 0 {
			score /= maxKeyword
		}
		k := score
		if existing, ok := combined[r.id]; ok {
			existing.Score += score * opts.KeywordWeight
			existing.KeywordScore = &k
		} else {
			combined[r.id] = &SearchResult{
				Snippet:      Snippet{ID: r.id},
				Score:        score * opts.KeywordWeight,
				KeywordScore: &k,
			}
		}
	}

	results := make([]SearchResult, 0, len(combined))
	for _, r := range combined {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// hydrate fills in snippet bodies for scored ids, preserving order.
func (s *Store) hydrate(ctx context.Context, results []SearchResult) ([]SearchResult, error) {
	hydrated := make([]SearchResult, 0, len(results))
	for _, r := range results {
		var sn Snippet
		err := s.db.QueryRowContext(ctx,
			"SELECT id, title, category, content FROM snippets WHERE id = ?", r.ID,
		).Scan(&sn.ID, &sn.Title, &sn.Category, &sn.Content)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		r.Snippet = sn
		hydrated = append(hydrated, r)
	}
	return hydrated, nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
