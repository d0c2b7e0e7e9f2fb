// Package trace persists conversation history to PostgreSQL for after-the-fact
// review. Writes happen off the hot path via Tracer; everything here is
// optional and the gateway runs fine with no database at all.
package trace

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxConversations = 200

// Store persists conversation traces to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the trace database at connStr and applies pending
// migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	if err = db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`).Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation and prunes the oldest ones
// past the retention cap.
func (s *Store) CreateConversation(id, primaryLanguage, languages string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, primary_language, languages, started_at) VALUES ($1, $2, $3, $4)`,
		id, primaryLanguage, languages, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM conversations WHERE id NOT IN (SELECT id FROM conversations ORDER BY started_at DESC LIMIT $1)`,
		maxConversations,
	)
	return err
}

// EndConversation stamps the conversation's end time.
func (s *Store) EndConversation(id string) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET ended_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return err
}

// CreateExchange inserts a running exchange.
func (s *Store) CreateExchange(id, conversationID string) error {
	_, err := s.db.Exec(
		`INSERT INTO exchanges (id, conversation_id, started_at, status) VALUES ($1, $2, $3, 'running')`,
		id, conversationID, time.Now().UTC(),
	)
	return err
}

// UpdateExchange sets the exchange's final fields.
func (s *Store) UpdateExchange(ex Exchange) error {
	_, err := s.db.Exec(
		`UPDATE exchanges
		 SET speaker_label = $1, source_language = $2, target_language = $3,
		     utterance = $4, translation = $5, duration_ms = $6, status = $7
		 WHERE id = $8`,
		ex.SpeakerLabel, ex.SourceLanguage, ex.TargetLanguage,
		ex.Utterance, ex.Translation, ex.DurationMs, ex.Status, ex.ID,
	)
	return err
}

// CreateSpan inserts a span.
func (s *Store) CreateSpan(sp Span) error {
	_, err := s.db.Exec(
		`INSERT INTO spans (id, exchange_id, name, started_at, duration_ms, input, output, status, error_msg)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sp.ID, sp.ExchangeID, sp.Name, sp.StartedAt.UTC(),
		sp.DurationMs, sp.Input, sp.Output, sp.Status, sp.Error,
	)
	return err
}

// ListConversations returns conversations newest first with exchange counts.
func (s *Store) ListConversations(limit, offset int) ([]Conversation, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT c.id, c.primary_language, c.languages, c.started_at, c.ended_at, COUNT(e.id) AS exchange_count
		FROM conversations c
		LEFT JOIN exchanges e ON e.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		var endedAt sql.NullTime
		if err = rows.Scan(&c.ID, &c.PrimaryLanguage, &c.Languages, &c.StartedAt, &endedAt, &c.ExchangeCount); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			c.EndedAt = &endedAt.Time
		}
		convs = append(convs, c)
	}
	return convs, total, rows.Err()
}

// GetConversation returns one conversation with its exchanges.
func (s *Store) GetConversation(id string) (*Conversation, []Exchange, error) {
	var c Conversation
	var endedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, primary_language, languages, started_at, ended_at FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.PrimaryLanguage, &c.Languages, &c.StartedAt, &endedAt)
	if err != nil {
		return nil, nil, err
	}
	if endedAt.Valid {
		c.EndedAt = &endedAt.Time
	}

	rows, err := s.db.Query(`
		SELECT e.id, e.conversation_id, e.speaker_label, e.source_language, e.target_language,
		       e.utterance, e.translation, e.duration_ms, e.status, e.started_at,
		       COUNT(sp.id) AS span_count
		FROM exchanges e
		LEFT JOIN spans sp ON sp.exchange_id = e.id
		WHERE e.conversation_id = $1
		GROUP BY e.id
		ORDER BY e.started_at ASC
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var e Exchange
		if err = rows.Scan(&e.ID, &e.ConversationID, &e.SpeakerLabel, &e.SourceLanguage, &e.TargetLanguage,
			&e.Utterance, &e.Translation, &e.DurationMs, &e.Status, &e.StartedAt, &e.SpanCount); err != nil {
			return nil, nil, err
		}
		exchanges = append(exchanges, e)
	}
	return &c, exchanges, rows.Err()
}

// GetExchange returns one exchange with its spans.
func (s *Store) GetExchange(conversationID, exchangeID string) (*Exchange, []Span, error) {
	var e Exchange
	err := s.db.QueryRow(
		`SELECT id, conversation_id, speaker_label, source_language, target_language,
		        utterance, translation, duration_ms, status, started_at
		 FROM exchanges WHERE id = $1 AND conversation_id = $2`,
		exchangeID, conversationID,
	).Scan(&e.ID, &e.ConversationID, &e.SpeakerLabel, &e.SourceLanguage, &e.TargetLanguage,
		&e.Utterance, &e.Translation, &e.DurationMs, &e.Status, &e.StartedAt)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, exchange_id, name, started_at, duration_ms, input, output, status, error_msg
		 FROM spans WHERE exchange_id = $1 ORDER BY started_at ASC`,
		exchangeID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var sp Span
		if err = rows.Scan(&sp.ID, &sp.ExchangeID, &sp.Name, &sp.StartedAt, &sp.DurationMs,
			&sp.Input, &sp.Output, &sp.Status, &sp.Error); err != nil {
			return nil, nil, err
		}
		spans = append(spans, sp)
	}
	return &e, spans, rows.Err()
}
