package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/identifier"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/model"
	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore"
)

// CollaboratorRepository reads the collaborators sheet.
type CollaboratorRepository interface {
	// List returns every collaborator with a usable identifier, in sheet
	// order. The first row wins when an identifier repeats.
	List(ctx context.Context) ([]model.Collaborator, error)
	// Sheet returns the sheet name.
	Sheet() string
}

type collaboratorRepo struct {
	store  rowstore.Store
	sheet  string
	logger *slog.Logger
}

// NewCollaboratorRepository creates a repository on sheet of store.
func NewCollaboratorRepository(store rowstore.Store, sheet string, logger *slog.Logger) CollaboratorRepository {
	return &collaboratorRepo{
		store:  store,
		sheet:  sheet,
		logger: logger.With(slog.String("component", "collaborator_repo")),
	}
}

func (r *collaboratorRepo) Sheet() string {
	return r.sheet
}

func (r *collaboratorRepo) List(ctx context.Context) ([]model.Collaborator, error) {
	rows, err := r.store.ReadAll(ctx, r.sheet)
	if err != nil {
		return nil, fmt.Errorf("read collaborators: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]model.Collaborator, 0, len(rows)-1)
	seen := make(map[string]int, len(rows)-1)
	for i, row := range rows[1:] {
		raw := cell(row, colCollabID)
		if identifier.IsBlank(raw) {
			continue
		}
		c := model.Collaborator{
			Identifier: identifier.Normalize(raw),
			FullName:   cell(row, colCollabName),
			PaymentKey: cell(row, colCollabPix),
		}
		if first, dup := seen[c.Identifier]; dup {
			r.logger.Warn("Duplicate collaborator identifier, keeping first row",
				slog.Int("row", i+2),
				slog.Int("first_row", first),
			)
			continue
		}
		seen[c.Identifier] = i + 2
		out = append(out, c)
	}
	return out, nil
}
