package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/neayi/discoursesync/wiki"
)

const (
	tableCommentData   = "comment_data"
	tablePages         = "pages"
	tableRevisions     = "revisions"
	tablePageKeywords  = "page_keywords"
	tableMigratedPosts = "migrated_posts"
)

type ThreadStore struct {
	db *sql.DB
}

var _ wiki.Store = (*ThreadStore)(nil)

func NewThreadStore(db *sql.DB) *ThreadStore {
	return &ThreadStore{db: db}
}

// firstRevisionAt is the creation time of a comment page, keyed by the
// outer query's comment_data row.
const firstRevisionAt = "(SELECT MIN(created_at) FROM revisions WHERE revisions.page_id = comment_data.page_id)"

func (store *ThreadStore) ListThreads(ctx context.Context) ([]*wiki.Thread, error) {
	query := sq.Select(
		"comment_data.page_id",
		"comment_data.assoc_page_id",
		"comment_data.comment_title",
		"pages.title",
		"pages.canonical_url",
	).
		From(tableCommentData).
		Join(tablePages + " ON pages.page_id = comment_data.assoc_page_id").
		Where(sq.Eq{"comment_data.parent_page_id": nil}).
		OrderBy("comment_data.page_id ASC")

	query = query.RunWith(store.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	threads := make([]*wiki.Thread, 0)

	for rows.Next() {
		var (
			thread wiki.Thread
			title  sql.NullString
		)

		err := rows.Scan(&thread.PageID, &thread.AssocPageID, &title, &thread.PageTitle, &thread.PageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		thread.Title = title.String

		threads = append(threads, &thread)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return threads, nil
}

func scanComment(row sq.RowScanner) (*wiki.Comment, error) {
	var (
		comment   wiki.Comment
		parent    sql.NullInt64
		title     sql.NullString
		createdAt int64
	)

	err := row.Scan(&comment.PageID, &parent, &title, &comment.Body, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	if parent.Valid {
		comment.ParentPageID = &parent.Int64
	}

	comment.Title = title.String
	comment.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &comment, nil
}

func commentQuery() sq.SelectBuilder {
	return sq.Select(
		"comment_data.page_id",
		"comment_data.parent_page_id",
		"comment_data.comment_title",
		"pages.content",
		firstRevisionAt+" AS created_at",
	).
		From(tableCommentData).
		Join(tablePages + " ON pages.page_id = comment_data.page_id")
}

func (store *ThreadStore) GetComment(ctx context.Context, pageID int64) (*wiki.Comment, error) {
	query := commentQuery().
		Where(sq.Eq{"comment_data.page_id": pageID}).
		RunWith(store.db)

	comment, err := scanComment(query.QueryRowContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get comment for page %d: %w", pageID, err)
	}

	return comment, nil
}

func (store *ThreadStore) ListReplies(ctx context.Context, parentPageID int64) ([]*wiki.Comment, error) {
	query := commentQuery().
		Where(sq.Eq{"comment_data.parent_page_id": parentPageID}).
		OrderBy("created_at ASC", "comment_data.page_id ASC").
		RunWith(store.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	comments := make([]*wiki.Comment, 0)

	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment failed: %w", err)
		}

		comments = append(comments, comment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return comments, nil
}

func (store *ThreadStore) Author(ctx context.Context, pageID int64) (*wiki.Author, error) {
	// Prefer the first contributor with a known email; the most recent
	// editor may only have fixed a typo.
	query := sq.Select("user_name", "user_email").
		From(tableRevisions).
		Where(sq.Eq{"page_id": pageID}).
		Where(sq.NotEq{"user_email": ""}).
		OrderBy("rev_id ASC").
		Limit(1).
		RunWith(store.db)

	var author wiki.Author

	err := query.QueryRowContext(ctx).Scan(&author.RealName, &author.Email)
	if err == nil {
		return &author, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get author for page %d: %w", pageID, err)
	}

	query = sq.Select("user_name", "user_email").
		From(tableRevisions).
		Where(sq.Eq{"page_id": pageID}).
		OrderBy("rev_id DESC").
		Limit(1).
		RunWith(store.db)

	err = query.QueryRowContext(ctx).Scan(&author.RealName, &author.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to get author for page %d: %w", pageID, err)
	}

	return &author, nil
}

func (store *ThreadStore) ListKeywords(ctx context.Context, pageID int64) ([]string, error) {
	query := sq.Select("keyword").
		From(tablePageKeywords).
		Where(sq.Eq{"page_id": pageID}).
		OrderBy("keyword ASC").
		RunWith(store.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	keywords := make([]string, 0)

	for rows.Next() {
		var keyword string

		err := rows.Scan(&keyword)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		keywords = append(keywords, keyword)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return keywords, nil
}

func (store *ThreadStore) MarkMigrated(ctx context.Context, pageID, postID int64, postNumber int) error {
	q := sq.Replace(tableMigratedPosts).
		Columns("page_id", "post_id", "post_number").
		Values(pageID, postID, postNumber).
		RunWith(store.db)

	_, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	return nil
}

func (store *ThreadStore) MigratedPost(ctx context.Context, pageID int64) (int64, int, error) {
	query := sq.Select("post_id", "post_number").
		From(tableMigratedPosts).
		Where(sq.Eq{"page_id": pageID}).
		RunWith(store.db)

	var (
		postID     int64
		postNumber int
	)

	err := query.QueryRowContext(ctx).Scan(&postID, &postNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, nil
		}

		return 0, 0, fmt.Errorf("failed to get migrated post for page %d: %w", pageID, err)
	}

	return postID, postNumber, nil
}
