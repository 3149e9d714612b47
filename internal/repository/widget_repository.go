package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sjdodge123/uptime-atlas/internal/models"
)

// WidgetRepositoryInterface defines the interface for widget repository operations
type WidgetRepositoryInterface interface {
	List(ctx context.Context) ([]*models.Widget, error)
	Upsert(ctx context.Context, widget *models.Widget) error
	UpdateLayouts(ctx context.Context, layouts []models.Widget) error
	UpdateEnabled(ctx context.Context, widgetKey string, enabled bool) error
}

type WidgetRepository struct {
	db *sql.DB
}

func NewWidgetRepository(db *sql.DB) *WidgetRepository {
	return &WidgetRepository{db: db}
}

func (r *WidgetRepository) List(ctx context.Context) ([]*models.Widget, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT widget_key, enabled, x, y, w, h, config_json, updated_at FROM widgets ORDER BY widget_key")
	if err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}
	defer rows.Close()

	widgets := []*models.Widget{}
	for rows.Next() {
		var widget models.Widget
		if err := rows.Scan(&widget.WidgetKey, &widget.Enabled, &widget.X, &widget.Y, &widget.W, &widget.H, &widget.ConfigJSON, &widget.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan widget: %w", err)
		}
		widgets = append(widgets, &widget)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate widgets: %w", err)
	}
	return widgets, nil
}

func (r *WidgetRepository) Upsert(ctx context.Context, widget *models.Widget) error {
	query := `
		INSERT INTO widgets (widget_key, enabled, x, y, w, h, config_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			enabled = VALUES(enabled),
			x = VALUES(x),
			y = VALUES(y),
			w = VALUES(w),
			h = VALUES(h),
			config_json = VALUES(config_json),
			updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query,
		widget.WidgetKey, widget.Enabled, widget.X, widget.Y, widget.W, widget.H, widget.ConfigJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert widget: %w", err)
	}
	return nil
}

// UpdateLayouts applies grid positions in one pass; unknown keys are ignored.
func (r *WidgetRepository) UpdateLayouts(ctx context.Context, layouts []models.Widget) error {
	for _, item := range layouts {
		_, err := r.db.ExecContext(ctx,
			"UPDATE widgets SET x = ?, y = ?, w = ?, h = ?, updated_at = NOW() WHERE widget_key = ?",
			item.X, item.Y, item.W, item.H, item.WidgetKey)
		if err != nil {
			return fmt.Errorf("failed to update widget layout: %w", err)
		}
	}
	return nil
}

func (r *WidgetRepository) UpdateEnabled(ctx context.Context, widgetKey string, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE widgets SET enabled = ?, updated_at = NOW() WHERE widget_key = ?", enabled, widgetKey)
	if err != nil {
		return fmt.Errorf("failed to update widget enabled: %w", err)
	}
	return nil
}
