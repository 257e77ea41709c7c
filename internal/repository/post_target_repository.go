package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
)

type PostTargetRepository interface {
	Create(ctx context.Context, tx *sql.Tx, target *models.PostTarget) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.PostTarget, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error)
	UpdateStatus(ctx context.Context, targetID int64, status, errorMessage string) error
	RemoveByPostID(ctx context.Context, tx *sql.Tx, postID int64) error
	ListFailedByUserID(ctx context.Context, userID int64) ([]*models.PostTarget, error)
	CountFailedPostsByUserID(ctx context.Context, userID int64) (int, error)
}

type postTargetRepository struct {
	db *sql.DB
}

func NewPostTargetRepository(db *sql.DB) PostTargetRepository {
	return &postTargetRepository{db: db}
}

const targetColumns = `id, post_id, account_id, platform, status, payload, error_message, created_at, updated_at`

func scanTarget(row interface{ Scan(...any) error }) (*models.PostTarget, error) {
	var t models.PostTarget
	var errMsg sql.NullString
	err := row.Scan(&t.ID, &t.PostID, &t.AccountID, &t.Platform, &t.Status, &t.Payload, &errMsg, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ErrorMessage = errMsg.String
	return &t, nil
}

func (r *postTargetRepository) Create(ctx context.Context, tx *sql.Tx, target *models.PostTarget) (int64, error) {
	query := `
		INSERT INTO post_targets (post_id, account_id, platform, status, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, target.PostID, target.AccountID, target.Platform, target.Status, target.Payload).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, target.PostID, target.AccountID, target.Platform, target.Status, target.Payload).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *postTargetRepository) GetByID(ctx context.Context, id int64) (*models.PostTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM post_targets WHERE id = $1`
	target, err := scanTarget(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return target, nil
}

func (r *postTargetRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM post_targets WHERE post_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var targets []*models.PostTarget
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (r *postTargetRepository) UpdateStatus(ctx context.Context, targetID int64, status, errorMessage string) error {
	query := `
		UPDATE post_targets
		SET status = $1,
			error_message = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, errorMessage, time.Now(), targetID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postTargetRepository) RemoveByPostID(ctx context.Context, tx *sql.Tx, postID int64) error {
	query := `DELETE FROM post_targets WHERE post_id = $1`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, postID)
	} else {
		_, err = r.db.ExecContext(ctx, query, postID)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postTargetRepository) ListFailedByUserID(ctx context.Context, userID int64) ([]*models.PostTarget, error) {
	query := `
		SELECT t.id, t.post_id, t.account_id, t.platform, t.status, t.payload, t.error_message, t.created_at, t.updated_at
		FROM post_targets t
		JOIN posts p ON p.id = t.post_id
		WHERE p.user_id = $1 AND t.status = $2
		ORDER BY t.updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, models.TargetStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var targets []*models.PostTarget
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (r *postTargetRepository) CountFailedPostsByUserID(ctx context.Context, userID int64) (int, error) {
	query := `
		SELECT COUNT(DISTINCT t.post_id)
		FROM post_targets t
		JOIN posts p ON p.id = t.post_id
		WHERE p.user_id = $1 AND t.status = $2
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, models.TargetStatusFailed).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}
